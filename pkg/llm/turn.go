package llm

// Turn is a complete request/response pair, the unit recorded in the case ledger.
type Turn struct {
	Provider string    `json:"provider"`
	Request  Request   `json:"request"`
	Response *Response `json:"response"`
}
