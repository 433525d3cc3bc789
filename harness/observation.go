package harness

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

// KeyValue is a flat set of measurements or parameters.
//
// expect values to be string, float64, or bool
type KeyValue map[string]interface{}

func (kv KeyValue) Validate() error {
	for key, v := range kv {
		switch v.(type) {
		case string, float64, bool:
			continue
		default:
			return fmt.Errorf("key %v is of type %T and not "+
				"string, float64, or bool", key, v)
		}
	}
	return nil
}

type KeyValuePair struct {
	Key string
	Val interface{}
}

// Pairs returns the key-value pairs in kv, sorted by key
func (kv KeyValue) Pairs() []KeyValuePair {
	var pairs []KeyValuePair
	for key, val := range kv {
		pairs = append(pairs, KeyValuePair{key, val})
	}
	sort.Slice(pairs, func(i int, j int) bool {
		return pairs[i].Key < pairs[j].Key
	})
	return pairs
}

type Observation struct {
	Values KeyValue `json:"values"`
	Config KeyValue `json:"config"`
}

// Observation flattens r for serialization. Times are in seconds.
func (r *Result) Observation() Observation {
	return Observation{
		Values: KeyValue{
			"alloc_s":    r.AllocTime.Seconds(),
			"free_s":     r.FreeTime.Seconds(),
			"allocated":  float64(r.Allocated),
			"peak_used":  float64(r.Peak.UsedBytes),
			"peak_free":  float64(r.Peak.FreeBytes),
			"peak_pages": float64(r.Peak.Pages),
			"grows":      float64(r.Final.Grows),
			"splits":     float64(r.Final.Splits),
			"merges":     float64(r.Final.Merges),
			"checks":     float64(r.Checks),
		},
		Config: KeyValue{
			"backend":  r.Backend,
			"count":    float64(r.Workload.Count),
			"max_size": float64(r.Workload.MaxSize),
			"seed":     float64(r.Workload.Seed),
			"order":    r.Workload.Order.String(),
			"check":    r.Workload.Check,
			"arena":    float64(r.Peak.TotalSize),
		},
	}
}

// Write appends the serialized observation to w
func (o Observation) Write(w io.Writer) error {
	p, err := json.Marshal(o)
	if err != nil {
		return err
	}
	p = append(p, '\n')
	_, err = w.Write(p)
	return err
}

// ReadObservation gets the next observation in r
func ReadObservation(r io.Reader) (o Observation, err error) {
	d := json.NewDecoder(r)
	err = d.Decode(&o)
	return
}

func WriteObservations(w io.Writer, obs []Observation) error {
	for _, o := range obs {
		err := o.Write(w)
		if err != nil {
			return err
		}
	}
	return nil
}
