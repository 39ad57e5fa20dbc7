package risk

// Summary counts resolved records by status.
type Summary struct {
	Total   int `json:"total"`
	Pass    int `json:"pass"`
	Warning int `json:"warning"`
	Fail    int `json:"fail"`
}

func Summarize(records []AddressRecord) Summary {
	var s Summary
	for _, r := range records {
		s.Total++
		switch r.Status {
		case StatusFail:
			s.Fail++
		case StatusWarning:
			s.Warning++
		default:
			s.Pass++
		}
	}
	return s
}
