package bills

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tablyhq/tably-backend/api/middleware"
	"github.com/tablyhq/tably-backend/api/responses"
	"github.com/tablyhq/tably-backend/api/validators"
	internalbills "github.com/tablyhq/tably-backend/internal/bills"
	pkgerrors "github.com/tablyhq/tably-backend/pkg/errors"
	"github.com/tablyhq/tably-backend/pkg/logger"
)

type billItemRequest struct {
	MenuItemID     *string `json:"menu_item_id,omitempty" validate:"omitempty,uuid4"`
	Name           string  `json:"name,omitempty" validate:"omitempty,max=200"`
	UnitPriceCents int     `json:"unit_price_cents,omitempty" validate:"omitempty,min=0"`
	Qty            int     `json:"qty" validate:"required,min=1"`
}

type createBillRequest struct {
	TableID            *string           `json:"table_id,omitempty" validate:"omitempty,uuid4"`
	Items              []billItemRequest `json:"items" validate:"required,min=1,dive"`
	DiscountCents      int               `json:"discount_cents,omitempty" validate:"omitempty,min=0"`
	ServiceChargeCents *int              `json:"service_charge_cents,omitempty" validate:"omitempty,min=0"`
}

type updateChargesRequest struct {
	DiscountCents      *int `json:"discount_cents,omitempty" validate:"omitempty,min=0"`
	ServiceChargeCents *int `json:"service_charge_cents,omitempty" validate:"omitempty,min=0"`
}

// Create opens a manual bill that is not derived from an order.
func Create(svc internalbills.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bills service unavailable"))
			return
		}

		restaurantID, err := restaurantFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createBillRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := internalbills.CreateBillInput{
			RestaurantID:       restaurantID,
			DiscountCents:      req.DiscountCents,
			ServiceChargeCents: req.ServiceChargeCents,
		}
		if req.TableID != nil {
			tableID, err := uuid.Parse(*req.TableID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid table id"))
				return
			}
			input.TableID = &tableID
		}
		items, err := buildItems(req.Items)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input.Items = items
		input.ActorUserID, input.ActorRole = actorFromContext(r)

		detail, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, detail)
	}
}

// CreateFromOrder opens (or returns) the bill for a served order.
func CreateFromOrder(svc internalbills.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bills service unavailable"))
			return
		}

		restaurantID, err := restaurantFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := parseID(r, "orderId", "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreateFromOrder(r.Context(), restaurantID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if result.Reused {
			responses.WriteSuccess(w, result)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// Get returns one bill with items and payments.
func Get(svc internalbills.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bills service unavailable"))
			return
		}

		restaurantID, billID, err := scopedBillID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		detail, err := svc.Get(r.Context(), restaurantID, billID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}

// AddItem appends one line to an open bill and recomputes totals.
func AddItem(svc internalbills.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bills service unavailable"))
			return
		}

		restaurantID, billID, err := scopedBillID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req billItemRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items, err := buildItems([]billItemRequest{req})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		detail, err := svc.AddItem(r.Context(), restaurantID, billID, items[0])
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}

// RemoveItem drops one line from an open bill and recomputes totals.
func RemoveItem(svc internalbills.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bills service unavailable"))
			return
		}

		restaurantID, billID, err := scopedBillID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := parseID(r, "itemId", "item id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		detail, err := svc.RemoveItem(r.Context(), restaurantID, billID, itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}

// UpdateCharges patches the discount and/or service charge on an open bill.
func UpdateCharges(svc internalbills.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bills service unavailable"))
			return
		}

		restaurantID, billID, err := scopedBillID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req updateChargesRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if req.DiscountCents == nil && req.ServiceChargeCents == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "nothing to update"))
			return
		}

		detail, err := svc.UpdateCharges(r.Context(), restaurantID, billID, internalbills.UpdateChargesInput{
			DiscountCents:      req.DiscountCents,
			ServiceChargeCents: req.ServiceChargeCents,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}

// Close settles an open bill once payments cover the total.
func Close(svc internalbills.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bills service unavailable"))
			return
		}

		restaurantID, billID, err := scopedBillID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		actorID, actorRole := actorFromContext(r)
		detail, err := svc.Close(r.Context(), internalbills.CloseInput{
			RestaurantID: restaurantID,
			BillID:       billID,
			ActorUserID:  actorID,
			ActorRole:    actorRole,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}

// Delete voids an open bill with no succeeded payments.
func Delete(svc internalbills.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bills service unavailable"))
			return
		}

		restaurantID, billID, err := scopedBillID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Delete(r.Context(), restaurantID, billID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, nil)
	}
}

func buildItems(reqs []billItemRequest) ([]internalbills.BillItemInput, error) {
	items := make([]internalbills.BillItemInput, 0, len(reqs))
	for _, item := range reqs {
		input := internalbills.BillItemInput{
			Name:           validators.SanitizeString(item.Name, 200),
			UnitPriceCents: item.UnitPriceCents,
			Qty:            item.Qty,
		}
		if item.MenuItemID != nil {
			menuItemID, err := uuid.Parse(*item.MenuItemID)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid menu item id")
			}
			input.MenuItemID = &menuItemID
		} else if input.Name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item needs a menu item id or a name")
		}
		items = append(items, input)
	}
	return items, nil
}

func scopedBillID(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	restaurantID, err := restaurantFromContext(r)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	billID, err := parseID(r, "billId", "bill id")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return restaurantID, billID, nil
}

func parseID(r *http.Request, param, label string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, param))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, label+" is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+label)
	}
	return id, nil
}

func restaurantFromContext(r *http.Request) (uuid.UUID, error) {
	raw := middleware.RestaurantIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "restaurant context missing")
	}
	restaurantID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeForbidden, err, "invalid restaurant context")
	}
	return restaurantID, nil
}

func actorFromContext(r *http.Request) (uuid.UUID, string) {
	actorID, _ := uuid.Parse(middleware.UserIDFromContext(r.Context()))
	return actorID, middleware.RoleFromContext(r.Context())
}
