package catalogsync

import "hotel-stays-backend/internal/store"

// ApiResponse models the top-level structure of the upstream catalog response.
type ApiResponse struct {
	Code int `json:"code"`
	Data struct {
		Page     int                 `json:"page"`
		PageSize int                 `json:"pageSize"`
		Total    int                 `json:"total"`
		Items    []store.CatalogItem `json:"items"`
	} `json:"data"`
}
