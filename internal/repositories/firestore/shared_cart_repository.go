package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/plateful/api/internal/domain"
	pfirestore "github.com/plateful/api/internal/platform/firestore"
	"github.com/plateful/api/internal/repositories"
)

const (
	sharedCartsCollection = "sharedCarts"

	reapBatchSize = 100
)

type sharedCartItemDocument struct {
	UserID     string `firestore:"userId"`
	MenuItemID string `firestore:"menuItemId"`
	Name       string `firestore:"name"`
	Quantity   int    `firestore:"quantity"`
	UnitPrice  int64  `firestore:"unitPrice"`
}

type sharedCartDocument struct {
	BranchID         string                   `firestore:"branchId"`
	OrderType        string                   `firestore:"orderType"`
	PaymentMode      string                   `firestore:"paymentMode"`
	InviteCode       string                   `firestore:"inviteCode"`
	InitiatorID      string                   `firestore:"initiatorId"`
	Members          []string                 `firestore:"members"`
	Items            []sharedCartItemDocument `firestore:"items"`
	Status           string                   `firestore:"status"`
	ResultingOrderID *string                  `firestore:"resultingOrderId,omitempty"`
	CreatedAt        time.Time                `firestore:"createdAt"`
	UpdatedAt        time.Time                `firestore:"updatedAt"`
	ExpiresAt        time.Time                `firestore:"expiresAt"`
}

// SharedCartRepository implements repositories.SharedCartRepository. Every
// mutation is a transactional read-modify-write on the cart document so
// concurrent member edits never lose updates. Invite code uniqueness is
// enforced through a companion index collection keyed by the code itself.
type SharedCartRepository struct {
	base     *pfirestore.BaseRepository[sharedCartDocument]
	provider *pfirestore.Provider
}

var _ repositories.SharedCartRepository = (*SharedCartRepository)(nil)

const inviteCodesCollection = "sharedCartInviteCodes"

type inviteCodeDocument struct {
	CartID    string    `firestore:"cartId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

// NewSharedCartRepository constructs a Firestore-backed shared cart repository.
func NewSharedCartRepository(provider *pfirestore.Provider) (*SharedCartRepository, error) {
	if provider == nil {
		return nil, errors.New("shared cart repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[sharedCartDocument](provider, sharedCartsCollection)
	return &SharedCartRepository{
		base:     base,
		provider: provider,
	}, nil
}

// Insert creates the cart and claims its invite code in the same transaction.
// A taken code surfaces as a conflict so the caller can regenerate.
func (r *SharedCartRepository) Insert(ctx context.Context, cart domain.SharedCart) error {
	if r == nil || r.provider == nil {
		return errors.New("shared cart repository not initialised")
	}
	id := strings.TrimSpace(cart.ID)
	if id == "" {
		return errors.New("shared cart repository: cart id is required")
	}
	code := strings.TrimSpace(cart.InviteCode)
	if code == "" {
		return errors.New("shared cart repository: invite code is required")
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		client, err := r.provider.Client(ctx)
		if err != nil {
			return err
		}
		cartRef := client.Collection(sharedCartsCollection).Doc(id)
		codeRef := client.Collection(inviteCodesCollection).Doc(code)

		if err := tx.Create(codeRef, inviteCodeDocument{CartID: id, CreatedAt: cart.CreatedAt.UTC()}); err != nil {
			return err
		}
		return tx.Create(cartRef, encodeSharedCart(cart))
	})
	return pfirestore.WrapError("sharedCarts.insert", err)
}

func (r *SharedCartRepository) FindByID(ctx context.Context, cartID string) (domain.SharedCart, error) {
	if r == nil || r.base == nil {
		return domain.SharedCart{}, errors.New("shared cart repository not initialised")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(cartID))
	if err != nil {
		return domain.SharedCart{}, err
	}
	return decodeSharedCart(doc.ID, doc.Data), nil
}

func (r *SharedCartRepository) FindByInviteCode(ctx context.Context, code string) (domain.SharedCart, error) {
	if r == nil || r.base == nil {
		return domain.SharedCart{}, errors.New("shared cart repository not initialised")
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.SharedCart{}, pfirestore.NewNotFound("sharedCarts.findByInviteCode", errors.New("invite code is required"))
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("inviteCode", "==", code).Limit(1)
	})
	if err != nil {
		return domain.SharedCart{}, err
	}
	if len(docs) == 0 {
		return domain.SharedCart{}, pfirestore.NewNotFound("sharedCarts.findByInviteCode", fmt.Errorf("no cart for code %s", code))
	}
	return decodeSharedCart(docs[0].ID, docs[0].Data), nil
}

func (r *SharedCartRepository) AddMember(ctx context.Context, cartID, userID string, now time.Time) (domain.SharedCart, error) {
	return r.mutate(ctx, "sharedCarts.addMember", cartID, func(doc *sharedCartDocument) error {
		for _, m := range doc.Members {
			if m == userID {
				return nil
			}
		}
		if doc.Status != string(domain.SharedCartStatusOpen) {
			return pfirestore.NewConflict("sharedCarts.addMember", fmt.Errorf("cart %s is %s", cartID, doc.Status))
		}
		doc.Members = append(doc.Members, userID)
		doc.UpdatedAt = now.UTC()
		return nil
	})
}

func (r *SharedCartRepository) MutateItem(ctx context.Context, cartID string, mut repositories.ItemMutation, now time.Time) (domain.SharedCart, error) {
	return r.mutate(ctx, "sharedCarts.mutateItem", cartID, func(doc *sharedCartDocument) error {
		if doc.Status != string(domain.SharedCartStatusOpen) {
			return pfirestore.NewConflict("sharedCarts.mutateItem", fmt.Errorf("cart %s is %s", cartID, doc.Status))
		}

		doc.Items = applyItemMutation(doc.Items, mut)
		doc.UpdatedAt = now.UTC()
		return nil
	})
}

// applyItemMutation merges a signed quantity delta into the participant's
// line. A result at or below zero removes the line; a delta against an absent
// line creates it. Name and price snapshots only change when supplied, so a
// bare delta never blanks them.
func applyItemMutation(items []sharedCartItemDocument, mut repositories.ItemMutation) []sharedCartItemDocument {
	pos := -1
	for i, item := range items {
		if item.UserID == mut.UserID && item.MenuItemID == mut.MenuItemID {
			pos = i
			break
		}
	}

	quantity := mut.DeltaQuantity
	if pos >= 0 {
		quantity += items[pos].Quantity
	}

	switch {
	case quantity <= 0 && pos >= 0:
		return append(items[:pos], items[pos+1:]...)
	case quantity <= 0:
		// removing an absent line is a no-op
		return items
	case pos >= 0:
		items[pos].Quantity = quantity
		if mut.Name != "" {
			items[pos].Name = mut.Name
		}
		if mut.UnitPrice > 0 {
			items[pos].UnitPrice = mut.UnitPrice
		}
		return items
	default:
		return append(items, sharedCartItemDocument{
			UserID:     mut.UserID,
			MenuItemID: mut.MenuItemID,
			Name:       mut.Name,
			Quantity:   quantity,
			UnitPrice:  mut.UnitPrice,
		})
	}
}

func (r *SharedCartRepository) CompleteCheckout(ctx context.Context, cartID string, completion repositories.CheckoutCompletion) (domain.SharedCart, error) {
	return r.mutate(ctx, "sharedCarts.completeCheckout", cartID, func(doc *sharedCartDocument) error {
		if doc.Status != string(domain.SharedCartStatusOpen) {
			return pfirestore.NewConflict("sharedCarts.completeCheckout", fmt.Errorf("cart %s is %s", cartID, doc.Status))
		}
		orderID := completion.OrderID
		doc.Status = string(domain.SharedCartStatusCheckedOut)
		doc.ResultingOrderID = &orderID
		doc.UpdatedAt = completion.CompletedAt.UTC()
		return nil
	})
}

func (r *SharedCartRepository) ExpireOpenCartsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	if r == nil || r.base == nil {
		return 0, errors.New("shared cart repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("status", "==", string(domain.SharedCartStatusOpen)).
			Where("expiresAt", "<=", cutoff.UTC()).
			Limit(reapBatchSize)
	})
	if err != nil {
		return 0, err
	}

	reaped := 0
	for _, doc := range docs {
		_, err := r.mutate(ctx, "sharedCarts.expire", doc.ID, func(d *sharedCartDocument) error {
			if d.Status != string(domain.SharedCartStatusOpen) {
				return pfirestore.NewConflict("sharedCarts.expire", fmt.Errorf("cart %s is %s", doc.ID, d.Status))
			}
			d.Status = string(domain.SharedCartStatusExpired)
			d.UpdatedAt = cutoff.UTC()
			return nil
		})
		if err != nil {
			var repoErr repositories.RepositoryError
			// A cart checked out between query and write is left alone.
			if errors.As(err, &repoErr) && (repoErr.IsConflict() || repoErr.IsNotFound()) {
				continue
			}
			return reaped, err
		}
		reaped++
	}
	return reaped, nil
}

func (r *SharedCartRepository) mutate(ctx context.Context, op, cartID string, apply func(*sharedCartDocument) error) (domain.SharedCart, error) {
	if r == nil || r.provider == nil {
		return domain.SharedCart{}, errors.New("shared cart repository not initialised")
	}
	id := strings.TrimSpace(cartID)
	if id == "" {
		return domain.SharedCart{}, errors.New("shared cart repository: cart id is required")
	}

	var updated domain.SharedCart
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc sharedCartDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("firestore shared carts decode %s: %w", id, err)
		}
		if err := apply(&doc); err != nil {
			return err
		}
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		updated = decodeSharedCart(id, doc)
		return nil
	})
	if err != nil {
		return domain.SharedCart{}, pfirestore.WrapError(op, err)
	}
	return updated, nil
}

func encodeSharedCart(cart domain.SharedCart) sharedCartDocument {
	doc := sharedCartDocument{
		BranchID:         strings.TrimSpace(cart.BranchID),
		OrderType:        string(cart.OrderType),
		PaymentMode:      string(cart.PaymentMode),
		InviteCode:       strings.TrimSpace(cart.InviteCode),
		InitiatorID:      strings.TrimSpace(cart.InitiatorID),
		Members:          append([]string(nil), cart.Members...),
		Status:           string(cart.Status),
		ResultingOrderID: cart.ResultingOrderID,
		CreatedAt:        cart.CreatedAt.UTC(),
		UpdatedAt:        cart.UpdatedAt.UTC(),
		ExpiresAt:        cart.ExpiresAt.UTC(),
	}
	doc.Items = make([]sharedCartItemDocument, 0, len(cart.Items))
	for _, item := range cart.Items {
		doc.Items = append(doc.Items, sharedCartItemDocument{
			UserID:     item.UserID,
			MenuItemID: item.MenuItemID,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
		})
	}
	return doc
}

func decodeSharedCart(id string, doc sharedCartDocument) domain.SharedCart {
	cart := domain.SharedCart{
		ID:               id,
		BranchID:         doc.BranchID,
		OrderType:        domain.OrderType(doc.OrderType),
		PaymentMode:      domain.PaymentMode(doc.PaymentMode),
		InviteCode:       doc.InviteCode,
		InitiatorID:      doc.InitiatorID,
		Members:          append([]string(nil), doc.Members...),
		Status:           domain.SharedCartStatus(doc.Status),
		ResultingOrderID: doc.ResultingOrderID,
		CreatedAt:        doc.CreatedAt,
		UpdatedAt:        doc.UpdatedAt,
		ExpiresAt:        doc.ExpiresAt,
	}
	cart.Items = make([]domain.SharedCartItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		cart.Items = append(cart.Items, domain.SharedCartItem{
			UserID:     item.UserID,
			MenuItemID: item.MenuItemID,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
		})
	}
	return cart
}
