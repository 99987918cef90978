package dto

// Envelope is the response shape shared by every endpoint:
// status=false always pairs with a non-2xx code and a populated Error.
type Envelope struct {
	Status  bool       `json:"status"`
	Message string     `json:"message"`
	Data    any        `json:"data"`
	Error   *ErrorBody `json:"error"`
}

// ErrorBody carries the stable taxonomy code plus a human-readable detail.
type ErrorBody struct {
	Field  string `json:"field,omitempty"`
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// PageRequest is the pagination block of list endpoints.
type PageRequest struct {
	Skip  int `query:"skip" validate:"min=0"`
	Limit int `query:"limit" validate:"min=0,max=100"`
}

// DefaultPage applies defaults when Skip/Limit are unset.
func (p *PageRequest) DefaultPage() {
	if p.Limit <= 0 {
		p.Limit = 20
	}
	if p.Limit > 100 {
		p.Limit = 100
	}
	if p.Skip < 0 {
		p.Skip = 0
	}
}

// PageResponse echoes pagination back with the total row count.
type PageResponse struct {
	Skip  int   `json:"skip"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
}
