package domain

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ListingItem is an immutable snapshot of one contracting process returned by
// the portal's search endpoint. Known fields are promoted to typed members;
// the full upstream payload is retained in Raw for audit.
type ListingItem struct {
	ItemID            int64
	ContractListingID int64
	ProcessCode       string
	EntityName        string
	Object            string
	Category          string
	Status            string

	// Date fields are kept as raw text: the portal emits several formats
	// depending on the record's age and module of origin.
	PublishedAt    string
	QuotationStart string
	QuotationEnd   string

	Raw map[string]any
}

// PageMeta mirrors the portal's Spring-style pageable envelope.
type PageMeta struct {
	TotalElements int `json:"totalElements"`
	PageNumber    int `json:"pageNumber"`
	PageSize      int `json:"pageSize"`
}

// UnmarshalJSON promotes the known portal fields and keeps everything in Raw.
func (it *ListingItem) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	it.Raw = raw
	it.ItemID = rawInt64(raw, "id")
	it.ContractListingID = rawInt64(raw, "idListadoContrato")
	it.ProcessCode = rawString(raw, "codigoProceso")
	it.EntityName = rawString(raw, "nombreEntidad")
	it.Object = rawString(raw, "objetoContratacion")
	it.Category = rawString(raw, "categoria")
	it.Status = rawString(raw, "estado")
	it.PublishedAt = rawString(raw, "fechaPublicacion")
	it.QuotationStart = rawString(raw, "fechaInicioCotizacion")
	it.QuotationEnd = rawString(raw, "fechaFinCotizacion")
	return nil
}

// Identifier resolves the dedup identity of the item: external item id first,
// then the contract-listing id, then the process code. Empty means the item
// cannot be identified and is never deduplicated.
func (it ListingItem) Identifier() string {
	if it.ItemID != 0 {
		return strconv.FormatInt(it.ItemID, 10)
	}
	if it.ContractListingID != 0 {
		return strconv.FormatInt(it.ContractListingID, 10)
	}
	return strings.TrimSpace(it.ProcessCode)
}

// DateFields returns the candidate date texts checked by the temporal filter,
// in evaluation order.
func (it ListingItem) DateFields() []string {
	return []string{it.PublishedAt, it.QuotationStart, it.QuotationEnd}
}

func rawString(raw map[string]any, key string) string {
	if v, ok := raw[key].(string); ok {
		return v
	}
	return ""
}

func rawInt64(raw map[string]any, key string) int64 {
	switch v := raw[key].(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0
		}
		return n
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}
