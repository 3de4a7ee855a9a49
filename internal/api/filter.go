package api

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"github.com/tangram-vision/datasets-cli/internal/constants"
)

// DatasetFilter narrows a dataset listing. Zero values mean "no filter".
//
// The metadata service follows PostgREST conventions: column filters use
// operator prefixes (eq., lt., gte.) and ordering uses order=column.dir.
type DatasetFilter struct {
	// DatasetID filters to a single dataset.
	DatasetID *uuid.UUID

	// SystemID filters on the user-supplied system identifier.
	SystemID string

	// Before / After filter on creation date (exclusive / inclusive),
	// as YYYY-MM-DD date strings.
	Before string
	After  string

	// OrderDescending sorts newest-first. When unset no order parameter
	// is sent and the service's default row order applies.
	OrderDescending bool

	// Limit caps the page size (1-100). Zero leaves the service default.
	Limit int

	// Offset skips rows for pagination.
	Offset int
}

// query encodes the filter as PostgREST query parameters.
func (f DatasetFilter) query() (url.Values, error) {
	q := url.Values{}
	q.Set("select", "*,files(*)")

	if f.DatasetID != nil {
		q.Set("dataset_id", "eq."+f.DatasetID.String())
	}
	if f.SystemID != "" {
		q.Set("system_id", "eq."+f.SystemID)
	}
	if f.Before != "" {
		q.Add("created_date", "lt."+f.Before)
	}
	if f.After != "" {
		q.Add("created_date", "gte."+f.After)
	}
	if f.OrderDescending {
		q.Set("order", "created_date.desc")
	}
	if f.Limit != 0 {
		if f.Limit < 1 || f.Limit > constants.ListLimitMax {
			return nil, fmt.Errorf("limit must be between 1 and %d, got %d", constants.ListLimitMax, f.Limit)
		}
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset != 0 {
		if f.Offset < 0 {
			return nil, fmt.Errorf("offset must not be negative, got %d", f.Offset)
		}
		q.Set("offset", strconv.Itoa(f.Offset))
	}

	return q, nil
}

// fileQuery encodes a file listing for one dataset. Multiple prefixes form
// a logical OR over filepath LIKE prefix%.
func fileQuery(datasetID uuid.UUID, prefixes []string) url.Values {
	q := url.Values{}
	q.Set("dataset_id", "eq."+datasetID.String())

	if len(prefixes) > 0 {
		terms := ""
		for i, p := range prefixes {
			if i > 0 {
				terms += ","
			}
			terms += "filepath.ilike." + p + "*"
		}
		q.Set("or", "("+terms+")")
	}

	return q
}
