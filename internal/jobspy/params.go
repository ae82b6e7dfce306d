package jobspy

import (
	"encoding/json"
	"math"
	"reflect"
)

// SearchParams is the request body sent to the JobSpy API. No key is
// required and unknown keys pass through untouched. Both the camelCase keys
// below and their snake_case predecessors (site_name, search_term,
// results_wanted, hours_old, country_indeed, ...) are forwarded verbatim.
type SearchParams map[string]any

// Known camelCase parameters understood by the JobSpy API.
const (
	ParamSiteNames                = "siteNames"
	ParamSearchTerm               = "searchTerm"
	ParamGoogleSearchTerm         = "googleSearchTerm"
	ParamLocation                 = "location"
	ParamDistance                 = "distance"
	ParamJobType                  = "jobType"
	ParamIsRemote                 = "isRemote"
	ParamResultsWanted            = "resultsWanted"
	ParamEasyApply                = "easyApply"
	ParamDescriptionFormat        = "descriptionFormat"
	ParamOffset                   = "offset"
	ParamHoursOld                 = "hoursOld"
	ParamVerbose                  = "verbose"
	ParamCountryIndeed            = "countryIndeed"
	ParamLinkedinFetchDescription = "linkedinFetchDescription"
	ParamLinkedinCompanyIDs       = "linkedinCompanyIds"
	ParamEnforceAnnualSalary      = "enforceAnnualSalary"
	ParamProxies                  = "proxies"
	ParamCACert                   = "caCert"
	ParamFormat                   = "format"
	ParamTimeout                  = "timeout"
)

// Sanitize returns a deep copy of p holding only JSON-encodable values.
// Functions, channels and other unencodable values are dropped from objects
// and become null inside arrays; non-finite floats become null. A nil p
// yields an empty object.
func Sanitize(p SearchParams) map[string]any {
	out := make(map[string]any, len(p))
	for key, value := range p {
		if clean, ok := sanitizeValue(reflect.ValueOf(value)); ok {
			out[key] = clean
		}
	}
	return out
}

func sanitizeValue(v reflect.Value) (any, bool) {
	if !v.IsValid() {
		return nil, true
	}
	switch v.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		return nil, false
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil, true
		}
		return sanitizeValue(v.Elem())
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, true
		}
		return f, true
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return roundTrip(v.Interface())
		}
		if v.IsNil() {
			return nil, true
		}
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			if clean, ok := sanitizeValue(iter.Value()); ok {
				out[iter.Key().String()] = clean
			}
		}
		return out, true
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			return nil, true
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return roundTrip(v.Interface())
		}
		out := make([]any, v.Len())
		for i := 0; i < v.Len(); i++ {
			clean, ok := sanitizeValue(v.Index(i))
			if ok {
				out[i] = clean
			}
		}
		return out, true
	default:
		return roundTrip(v.Interface())
	}
}

// roundTrip copies scalars and structs through encoding/json.
func roundTrip(value any) (any, bool) {
	b, err := json.Marshal(value)
	if err != nil {
		return nil, false
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, false
	}
	return out, true
}
