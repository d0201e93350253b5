package httpx

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/ariefcatur/go-storefront-orders/internal/auth"
	"github.com/ariefcatur/go-storefront-orders/internal/cart"
)

type CartHandler struct {
	Cart *cart.Service
}

type AddToCartReq struct {
	ProductID int64  `json:"productId"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size"`
	ColorID   *int64 `json:"colorId"`
}

type UpdateQuantityReq struct {
	Quantity int `json:"quantity"`
}

func (h *CartHandler) Register(r chi.Router) {
	r.Post("/cart/add", h.add)
	r.Get("/cart/items", h.list)
	r.Put("/cart/items/{id}", h.update)
	r.Delete("/cart/items/{id}", h.remove)
	r.Delete("/cart/clear", h.clear)
}

func (h *CartHandler) add(w http.ResponseWriter, r *http.Request) {
	var req AddToCartReq
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	line, err := h.Cart.AddItem(r.Context(), userID(r), cart.AddInput{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		Size:      req.Size,
		ColorID:   req.ColorID,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "item added to cart", "item": line})
}

func (h *CartHandler) list(w http.ResponseWriter, r *http.Request) {
	items, err := h.Cart.ListItems(r.Context(), userID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *CartHandler) update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req UpdateQuantityReq
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.Cart.UpdateQuantity(r.Context(), userID(r), id, req.Quantity); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "cart item updated"})
}

func (h *CartHandler) remove(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.Cart.RemoveItem(r.Context(), userID(r), id); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "cart item removed"})
}

func (h *CartHandler) clear(w http.ResponseWriter, r *http.Request) {
	if err := h.Cart.Clear(r.Context(), userID(r)); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "cart cleared"})
}

// userID is only called behind auth.Middleware.
func userID(r *http.Request) string {
	p, _ := auth.PrincipalFrom(r.Context())
	return p.UserID
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Invalid("invalid cart item id")
	}
	return id, nil
}
