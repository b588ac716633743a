package collector

// Item is one meter value reported by the gateway.
type Item struct {
	DeviceID string  `json:"device_id"`
	Value    float64 `json:"value"`
	ReadAt   string  `json:"read_at"`
}

// ApiResponse models the top-level structure of the gateway's response.
type ApiResponse struct {
	Code int `json:"code"`
	Data struct {
		Page     int    `json:"page"`
		PageSize int    `json:"pageSize"`
		Total    int    `json:"total"`
		Items    []Item `json:"items"`
	} `json:"data"`
}
