package ingest

import "encoding/json"

// StringList accepts either a JSON array of strings or a single string.
// Empty values are dropped.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single != "" {
			*l = StringList{single}
		} else {
			*l = nil
		}
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	var out StringList
	for _, s := range list {
		if s != "" {
			out = append(out, s)
		}
	}
	*l = out
	return nil
}
