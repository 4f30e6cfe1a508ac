package firestore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/plateful/api/internal/domain"
	pfirestore "github.com/plateful/api/internal/platform/firestore"
	"github.com/plateful/api/internal/repositories"
)

const (
	ordersCollection = "orders"

	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
)

type orderAddressDocument struct {
	Line1  string  `firestore:"line1"`
	Line2  *string `firestore:"line2,omitempty"`
	City   string  `firestore:"city"`
	ZoneID string  `firestore:"zoneId"`
	Phone  *string `firestore:"phone,omitempty"`
}

type orderDineInDocument struct {
	At     time.Time `firestore:"at"`
	Guests int       `firestore:"guests"`
}

type orderItemDocument struct {
	MenuItemID string `firestore:"menuItemId"`
	Name       string `firestore:"name"`
	Quantity   int    `firestore:"quantity"`
	UnitPrice  int64  `firestore:"unitPrice"`
}

type orderDocument struct {
	OrderNumber       string                `firestore:"orderNumber"`
	BranchID          string                `firestore:"branchId"`
	UserID            string                `firestore:"userId"`
	CartRef           *string               `firestore:"cartRef,omitempty"`
	Status            string                `firestore:"status"`
	Payment           string                `firestore:"payment"`
	PaystackReference string                `firestore:"paystackReference"`
	OrderType         string                `firestore:"orderType"`
	DeliveryAddress   *orderAddressDocument `firestore:"deliveryAddress,omitempty"`
	PickupTime        *time.Time            `firestore:"pickupTime,omitempty"`
	DineIn            *orderDineInDocument  `firestore:"dineIn,omitempty"`
	Items             []orderItemDocument   `firestore:"items"`
	TotalAmount       int64                 `firestore:"totalAmount"`
	DiscountAmount    int64                 `firestore:"discountAmount"`
	DeliveryFee       int64                 `firestore:"deliveryFee"`
	AppliedPromoID    *string               `firestore:"appliedPromoId,omitempty"`
	CancelReason      *string               `firestore:"cancelReason,omitempty"`
	CreatedAt         time.Time             `firestore:"createdAt"`
	UpdatedAt         time.Time             `firestore:"updatedAt"`
	PaidAt            *time.Time            `firestore:"paidAt,omitempty"`
	CompletedAt       *time.Time            `firestore:"completedAt,omitempty"`
	CancelledAt       *time.Time            `firestore:"cancelledAt,omitempty"`
	RefundedAt        *time.Time            `firestore:"refundedAt,omitempty"`
}

// OrderRepository implements repositories.OrderRepository on Firestore. Status
// transitions and payment application run as transactions so concurrent
// writers cannot interleave between read and write.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection)
	return &OrderRepository{
		base:     base,
		provider: provider,
	}, nil
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}

	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, encodeOrder(order)); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(doc.ID, doc.Data), nil
}

func (r *OrderRepository) FindByPaymentReference(ctx context.Context, reference string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return domain.Order{}, pfirestore.NewNotFound("orders.findByReference", errors.New("reference is required"))
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("paystackReference", "==", reference).Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, pfirestore.NewNotFound("orders.findByReference", fmt.Errorf("no order for reference %s", reference))
	}
	return decodeOrder(docs[0].ID, docs[0].Data), nil
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = defaultOrderPageSize
	}
	if pageSize > maxOrderPageSize {
		pageSize = maxOrderPageSize
	}

	cursor, err := decodeOrderCursor(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if uid := strings.TrimSpace(filter.UserID); uid != "" {
			q = q.Where("userId", "==", uid)
		}
		if branch := strings.TrimSpace(filter.BranchID); branch != "" {
			q = q.Where("branchId", "==", branch)
		}
		if len(filter.Status) > 0 {
			q = q.Where("status", "in", filter.Status)
		}
		if filter.DateRange.From != nil {
			q = q.Where("createdAt", ">=", filter.DateRange.From.UTC())
		}
		if filter.DateRange.To != nil {
			q = q.Where("createdAt", "<=", filter.DateRange.To.UTC())
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if cursor != nil {
			q = q.StartAfter(cursor.createdAt, cursor.id)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	page := domain.CursorPage[domain.Order]{}
	for i, doc := range docs {
		if i == pageSize {
			last := docs[pageSize-1]
			page.NextPageToken = encodeOrderCursor(last.Data.CreatedAt, last.ID)
			break
		}
		page.Items = append(page.Items, decodeOrder(doc.ID, doc.Data))
	}
	return page, nil
}

func (r *OrderRepository) PatchStatus(ctx context.Context, orderID string, expectedStatus domain.OrderStatus, patch repositories.OrderPatch) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	var updated domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("firestore orders decode %s: %w", id, err)
		}
		if doc.Status != string(expectedStatus) {
			return pfirestore.NewConflict("orders.patchStatus",
				fmt.Errorf("order %s is %s, expected %s", id, doc.Status, expectedStatus))
		}

		applyOrderPatch(&doc, patch)
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		updated = decodeOrder(id, doc)
		return nil
	})
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.patchStatus", err)
	}
	return updated, nil
}

func (r *OrderRepository) ApplyPayment(ctx context.Context, reference string, paidAt time.Time) (repositories.PaymentApplyResult, error) {
	if r == nil || r.provider == nil {
		return repositories.PaymentApplyResult{}, errors.New("order repository not initialised")
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return repositories.PaymentApplyResult{}, pfirestore.NewNotFound("orders.applyPayment", errors.New("reference is required"))
	}

	var result repositories.PaymentApplyResult
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		client, err := r.provider.Client(ctx)
		if err != nil {
			return err
		}
		query := client.Collection(ordersCollection).
			Where("paystackReference", "==", reference).
			Limit(1)
		snaps, err := tx.Documents(query).GetAll()
		if err != nil {
			return err
		}
		if len(snaps) == 0 {
			return pfirestore.NewNotFound("orders.applyPayment", fmt.Errorf("no order for reference %s", reference))
		}

		snap := snaps[0]
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("firestore orders decode %s: %w", snap.Ref.ID, err)
		}

		if doc.Payment == string(domain.PaymentStatusPaid) {
			result = repositories.PaymentApplyResult{Order: decodeOrder(snap.Ref.ID, doc), Applied: false}
			return nil
		}

		at := paidAt.UTC()
		doc.Payment = string(domain.PaymentStatusPaid)
		doc.PaidAt = &at
		doc.UpdatedAt = at
		if doc.Status == string(domain.OrderStatusPendingConfirmation) {
			doc.Status = string(domain.OrderStatusReceived)
		}

		if err := tx.Set(snap.Ref, doc); err != nil {
			return err
		}
		result = repositories.PaymentApplyResult{Order: decodeOrder(snap.Ref.ID, doc), Applied: true}
		return nil
	})
	if err != nil {
		return repositories.PaymentApplyResult{}, pfirestore.WrapError("orders.applyPayment", err)
	}
	return result, nil
}

func applyOrderPatch(doc *orderDocument, patch repositories.OrderPatch) {
	doc.Status = string(patch.Status)
	doc.UpdatedAt = patch.UpdatedAt.UTC()
	if patch.Payment != nil {
		doc.Payment = string(*patch.Payment)
	}
	if patch.PaystackReference != nil {
		doc.PaystackReference = *patch.PaystackReference
	}
	if patch.CancelReason != nil {
		doc.CancelReason = patch.CancelReason
	}
	if patch.PaidAt != nil {
		at := patch.PaidAt.UTC()
		doc.PaidAt = &at
	}
	if patch.CompletedAt != nil {
		at := patch.CompletedAt.UTC()
		doc.CompletedAt = &at
	}
	if patch.CancelledAt != nil {
		at := patch.CancelledAt.UTC()
		doc.CancelledAt = &at
	}
	if patch.RefundedAt != nil {
		at := patch.RefundedAt.UTC()
		doc.RefundedAt = &at
	}
}

func encodeOrder(order domain.Order) orderDocument {
	doc := orderDocument{
		OrderNumber:       strings.TrimSpace(order.OrderNumber),
		BranchID:          strings.TrimSpace(order.BranchID),
		UserID:            strings.TrimSpace(order.UserID),
		CartRef:           order.CartRef,
		Status:            string(order.Status),
		Payment:           string(order.Payment),
		PaystackReference: strings.TrimSpace(order.PaystackReference),
		OrderType:         string(order.OrderType),
		PickupTime:        order.PickupTime,
		TotalAmount:       order.TotalAmount,
		DiscountAmount:    order.DiscountAmount,
		DeliveryFee:       order.DeliveryFee,
		AppliedPromoID:    order.AppliedPromoID,
		CancelReason:      order.CancelReason,
		CreatedAt:         order.CreatedAt.UTC(),
		UpdatedAt:         order.UpdatedAt.UTC(),
		PaidAt:            order.PaidAt,
		CompletedAt:       order.CompletedAt,
		CancelledAt:       order.CancelledAt,
		RefundedAt:        order.RefundedAt,
	}

	if order.DeliveryAddress != nil {
		doc.DeliveryAddress = &orderAddressDocument{
			Line1:  order.DeliveryAddress.Line1,
			Line2:  order.DeliveryAddress.Line2,
			City:   order.DeliveryAddress.City,
			ZoneID: order.DeliveryAddress.ZoneID,
			Phone:  order.DeliveryAddress.Phone,
		}
	}
	if order.DineIn != nil {
		doc.DineIn = &orderDineInDocument{
			At:     order.DineIn.At.UTC(),
			Guests: order.DineIn.Guests,
		}
	}

	doc.Items = make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		doc.Items = append(doc.Items, orderItemDocument{
			MenuItemID: item.MenuItemID,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
		})
	}
	return doc
}

func decodeOrder(id string, doc orderDocument) domain.Order {
	order := domain.Order{
		ID:                id,
		OrderNumber:       doc.OrderNumber,
		BranchID:          doc.BranchID,
		UserID:            doc.UserID,
		CartRef:           doc.CartRef,
		Status:            domain.OrderStatus(doc.Status),
		Payment:           domain.PaymentStatus(doc.Payment),
		PaystackReference: doc.PaystackReference,
		OrderType:         domain.OrderType(doc.OrderType),
		PickupTime:        doc.PickupTime,
		TotalAmount:       doc.TotalAmount,
		DiscountAmount:    doc.DiscountAmount,
		DeliveryFee:       doc.DeliveryFee,
		AppliedPromoID:    doc.AppliedPromoID,
		CancelReason:      doc.CancelReason,
		CreatedAt:         doc.CreatedAt,
		UpdatedAt:         doc.UpdatedAt,
		PaidAt:            doc.PaidAt,
		CompletedAt:       doc.CompletedAt,
		CancelledAt:       doc.CancelledAt,
		RefundedAt:        doc.RefundedAt,
	}

	if doc.DeliveryAddress != nil {
		order.DeliveryAddress = &domain.Address{
			Line1:  doc.DeliveryAddress.Line1,
			Line2:  doc.DeliveryAddress.Line2,
			City:   doc.DeliveryAddress.City,
			ZoneID: doc.DeliveryAddress.ZoneID,
			Phone:  doc.DeliveryAddress.Phone,
		}
	}
	if doc.DineIn != nil {
		order.DineIn = &domain.DineInDetail{
			At:     doc.DineIn.At,
			Guests: doc.DineIn.Guests,
		}
	}

	order.Items = make([]domain.OrderItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		order.Items = append(order.Items, domain.OrderItem{
			MenuItemID: item.MenuItemID,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
		})
	}
	return order
}

type orderCursor struct {
	createdAt time.Time
	id        string
}

func encodeOrderCursor(createdAt time.Time, id string) string {
	raw := strconv.FormatInt(createdAt.UTC().UnixNano(), 10) + "|" + id
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeOrderCursor(token string) (*orderCursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("orders.list: invalid page token: %w", err)
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return nil, errors.New("orders.list: invalid page token")
	}
	nanos, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("orders.list: invalid page token: %w", err)
	}
	return &orderCursor{createdAt: time.Unix(0, nanos).UTC(), id: parts[1]}, nil
}
