package agent

import (
	"encoding/json"
	"fmt"
)

// Encode flattens an agent into one JSON record tagged with its kind.
func Encode(a Agent) ([]byte, error) {
	switch v := a.(type) {
	case *Cust1:
		return json.Marshal(v.Record())
	case *Cust2:
		return json.Marshal(v.Record())
	case *Product:
		return json.Marshal(v.Record())
	default:
		return nil, fmt.Errorf("cannot encode agent of type %T", a)
	}
}

// Decode rebuilds an agent from a record produced by Encode.
func Decode(line []byte) (Agent, error) {
	var head struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(line, &head); err != nil {
		return nil, fmt.Errorf("decoding agent record: %w", err)
	}
	switch head.Type {
	case KindCust1:
		var r Cust1Record
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, fmt.Errorf("decoding cust1 record: %w", err)
		}
		return RestoreCust1(r)
	case KindCust2:
		var r Cust2Record
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, fmt.Errorf("decoding cust2 record: %w", err)
		}
		return RestoreCust2(r)
	case KindProduct:
		var r ProductRecord
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, fmt.Errorf("decoding product record: %w", err)
		}
		return RestoreProduct(r)
	default:
		return nil, fmt.Errorf("unknown agent type %q", head.Type)
	}
}
