package cfpb

import (
	"encoding/json"
	"strconv"
)

// Record is one consumer complaint as returned by the search API. The fields
// the analytical store cares about are promoted to struct fields; anything
// else the provider sends rides along in Extra so upstream schema additions
// are never dropped.
type Record struct {
	ComplaintID             string
	DateReceived            string
	Company                 string
	Product                 string
	SubProduct              string
	Issue                   string
	SubIssue                string
	SubmittedVia            string
	CompanyResponse         string
	Timely                  string
	ConsumerDisputed        string
	State                   string
	ZipCode                 string
	CompanyPublicResponse   string
	ConsumerConsentProvided string
	DateSentToCompany       string
	ComplaintWhatHappened   string
	Tags                    string

	Extra map[string]any
}

// promoted maps JSON keys onto the struct fields above.
var promoted = map[string]func(*Record, string){
	"complaint_id":              func(r *Record, v string) { r.ComplaintID = v },
	"date_received":             func(r *Record, v string) { r.DateReceived = v },
	"company":                   func(r *Record, v string) { r.Company = v },
	"product":                   func(r *Record, v string) { r.Product = v },
	"sub_product":               func(r *Record, v string) { r.SubProduct = v },
	"issue":                     func(r *Record, v string) { r.Issue = v },
	"sub_issue":                 func(r *Record, v string) { r.SubIssue = v },
	"submitted_via":             func(r *Record, v string) { r.SubmittedVia = v },
	"company_response":          func(r *Record, v string) { r.CompanyResponse = v },
	"timely":                    func(r *Record, v string) { r.Timely = v },
	"consumer_disputed":         func(r *Record, v string) { r.ConsumerDisputed = v },
	"state":                     func(r *Record, v string) { r.State = v },
	"zip_code":                  func(r *Record, v string) { r.ZipCode = v },
	"company_public_response":   func(r *Record, v string) { r.CompanyPublicResponse = v },
	"consumer_consent_provided": func(r *Record, v string) { r.ConsumerConsentProvided = v },
	"date_sent_to_company":      func(r *Record, v string) { r.DateSentToCompany = v },
	"complaint_what_happened":   func(r *Record, v string) { r.ComplaintWhatHappened = v },
	"tags":                      func(r *Record, v string) { r.Tags = v },
}

// UnmarshalJSON splits an incoming payload into promoted fields and the Extra
// overflow bag. Promoted keys with non-string values stay in Extra untouched.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	for key, value := range raw {
		set, known := promoted[key]
		if !known {
			continue
		}
		if s, ok := asString(value); ok {
			set(r, s)
			delete(raw, key)
		}
	}

	if len(raw) > 0 {
		r.Extra = raw
	}
	return nil
}

// Fields flattens the record back into a single map, promoted fields first so
// they win over any colliding Extra key. Empty promoted fields are omitted.
func (r Record) Fields() map[string]any {
	out := make(map[string]any, len(promoted)+len(r.Extra))
	for key, value := range r.Extra {
		out[key] = value
	}

	set := func(key, value string) {
		if value != "" {
			out[key] = value
		}
	}
	set("complaint_id", r.ComplaintID)
	set("date_received", r.DateReceived)
	set("company", r.Company)
	set("product", r.Product)
	set("sub_product", r.SubProduct)
	set("issue", r.Issue)
	set("sub_issue", r.SubIssue)
	set("submitted_via", r.SubmittedVia)
	set("company_response", r.CompanyResponse)
	set("timely", r.Timely)
	set("consumer_disputed", r.ConsumerDisputed)
	set("state", r.State)
	set("zip_code", r.ZipCode)
	set("company_public_response", r.CompanyPublicResponse)
	set("consumer_consent_provided", r.ConsumerConsentProvided)
	set("date_sent_to_company", r.DateSentToCompany)
	set("complaint_what_happened", r.ComplaintWhatHappened)
	set("tags", r.Tags)
	return out
}

// asString accepts strings and whole JSON numbers (complaint ids appear as
// both depending on the endpoint).
func asString(v any) (string, bool) {
	switch value := v.(type) {
	case string:
		return value, true
	case float64:
		if value == float64(int64(value)) {
			return strconv.FormatInt(int64(value), 10), true
		}
		return strconv.FormatFloat(value, 'f', -1, 64), true
	default:
		return "", false
	}
}

// searchHit is one element of the provider's hit list.
type searchHit struct {
	Index  string          `json:"_index"`
	ID     string          `json:"_id"`
	Source json.RawMessage `json:"_source"`
}

// searchEnvelope is the {hits:{hits:[...]}} response shape.
type searchEnvelope struct {
	Hits struct {
		Hits []searchHit `json:"hits"`
	} `json:"hits"`
}
