// Package dataset reads and writes Hawkes realizations as JSON:
//
//	{"endTimes": [10, 12.5], "realizations": [[[0.1, 2.3], [1.2]], [[0.4], []]]}
//
// realizations[r][j] holds the timestamps of node j in realization r.
// endTimes is optional.
package dataset

import (
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/valyala/fastjson"
)

type Dataset struct {
	EndTimes     []float64     `json:"endTimes,omitempty"`
	Realizations [][][]float64 `json:"realizations"`
}

// NumNodes returns the node count of the first realization.
func (d *Dataset) NumNodes() int {
	if len(d.Realizations) == 0 {
		return 0
	}
	return len(d.Realizations[0])
}

func (d *Dataset) NumJumps() (numJumps int) {
	for _, nodes := range d.Realizations {
		for _, ts := range nodes {
			numJumps += len(ts)
		}
	}
	return numJumps
}

func Parse(payload []byte) (*Dataset, error) {
	parser := fastjson.Parser{}
	val, err := parser.ParseBytes(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse dataset")
	}

	realizations := val.Get("realizations")
	if realizations == nil {
		return nil, errors.New(`dataset has no "realizations" field`)
	}

	entries, err := realizations.Array()
	if err != nil {
		return nil, errors.Wrap(err, `"realizations" must be an array`)
	}

	ds := &Dataset{Realizations: make([][][]float64, len(entries))}
	for r, entry := range entries {
		nodes, err := entry.Array()
		if err != nil {
			return nil, errors.Wrapf(err, "realization #%d must be an array of nodes", r)
		}

		ds.Realizations[r] = make([][]float64, len(nodes))
		for j, node := range nodes {
			ts, err := parseFloats(node)
			if err != nil {
				return nil, errors.Wrapf(err, "realization #%d node %d", r, j)
			}
			ds.Realizations[r][j] = ts
		}
	}

	if endTimes := val.Get("endTimes"); endTimes != nil && endTimes.Type() != fastjson.TypeNull {
		if endTimes.Type() == fastjson.TypeNumber {
			endTime, _ := endTimes.Float64()
			ds.EndTimes = []float64{endTime}
		} else if ds.EndTimes, err = parseFloats(endTimes); err != nil {
			return nil, errors.Wrap(err, "endTimes")
		}
	}

	return ds, nil
}

func parseFloats(val *fastjson.Value) ([]float64, error) {
	vals, err := val.Array()
	if err != nil {
		return nil, err
	}

	floats := make([]float64, len(vals))
	for i, v := range vals {
		if floats[i], err = v.Float64(); err != nil {
			return nil, errors.Wrapf(err, "value #%d", i)
		}
	}
	return floats, nil
}

func Read(r io.Reader) (*Dataset, error) {
	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Parse(payload)
}

func Load(path string) (*Dataset, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	ds, err := Parse(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to load %s", path)
	}
	return ds, nil
}

func (d *Dataset) Write(w io.Writer) error {
	return json.NewEncoder(w).Encode(d)
}

func (d *Dataset) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := d.Write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
