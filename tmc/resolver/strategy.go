package resolver

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// strategyKind identifies which Overpass query shape resolved a
// particular (cid, tabcd) location table, so subsequent batches for the
// same table skip straight to the one that worked.
type strategyKind int

const (
	strategyNodeTag strategyKind = iota
	strategyRelation
)

type strategyImpl interface {
	kind() strategyKind
	buildQuery(cid, tabcd uint16, lcds []uint32) string
	parse(body []byte) (map[uint32]ResolvedLocation, error)
}

func strategyForKind(k strategyKind) strategyImpl {
	if k == strategyRelation {
		return relationStrategy{}
	}
	return nodeTagStrategy{}
}

// overpassResponse is the shape of an Overpass API JSON response, common
// to both strategies.
type overpassResponse struct {
	Elements []overpassElement `json:"elements"`
}

type overpassElement struct {
	Type   string            `json:"type"`
	Lat    float64           `json:"lat"`
	Lon    float64           `json:"lon"`
	Center *overpassCenter   `json:"center"`
	Tags   map[string]string `json:"tags"`
}

type overpassCenter struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func parseElements(body []byte, coords func(overpassElement) (float64, float64, bool)) (map[uint32]ResolvedLocation, error) {
	var resp overpassResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("resolver: parsing overpass response: %w", err)
	}

	out := make(map[uint32]ResolvedLocation)
	for _, el := range resp.Elements {
		lcdStr, ok := el.Tags["tmc:lcd"]
		if !ok {
			continue
		}
		lcd64, err := strconv.ParseUint(lcdStr, 10, 32)
		if err != nil {
			continue
		}
		lat, lon, ok := coords(el)
		if !ok {
			continue
		}
		lcd := uint32(lcd64)
		out[lcd] = ResolvedLocation{
			LCD:     lcd,
			Lat:     lat,
			Lon:     lon,
			Name:    el.Tags["name"],
			RoadRef: roadRef(el.Tags),
			Status:  Resolved,
		}
	}
	return out, nil
}

// roadRef pulls a road reference out of whichever OSM tag carries one,
// preferring the official "ref" tag and falling back to "int_ref".
func roadRef(tags map[string]string) string {
	if v, ok := tags["ref"]; ok {
		return v
	}
	return tags["int_ref"]
}

// nodeTagStrategy queries for OSM nodes directly tagged with the TMC
// location code, country and location table.
type nodeTagStrategy struct{}

func (nodeTagStrategy) kind() strategyKind { return strategyNodeTag }

func (nodeTagStrategy) buildQuery(cid, tabcd uint16, lcds []uint32) string {
	var sb strings.Builder
	sb.WriteString("[out:json];(")
	for _, lcd := range lcds {
		fmt.Fprintf(&sb, `node["tmc:cid"="%d"]["tmc:tabcd"="%d"]["tmc:lcd"="%d"];`, cid, tabcd, lcd)
	}
	sb.WriteString(");out body;")
	return sb.String()
}

func (nodeTagStrategy) parse(body []byte) (map[uint32]ResolvedLocation, error) {
	return parseElements(body, func(el overpassElement) (float64, float64, bool) {
		if el.Type != "node" {
			return 0, 0, false
		}
		return el.Lat, el.Lon, true
	})
}

// relationStrategy queries for OSM relations (e.g. a road segment
// boundary) carrying the same tags, using the relation's computed center.
type relationStrategy struct{}

func (relationStrategy) kind() strategyKind { return strategyRelation }

func (relationStrategy) buildQuery(cid, tabcd uint16, lcds []uint32) string {
	var sb strings.Builder
	sb.WriteString("[out:json];(")
	for _, lcd := range lcds {
		fmt.Fprintf(&sb, `rel["tmc:cid"="%d"]["tmc:tabcd"="%d"]["tmc:lcd"="%d"];`, cid, tabcd, lcd)
	}
	sb.WriteString(");out center;")
	return sb.String()
}

func (relationStrategy) parse(body []byte) (map[uint32]ResolvedLocation, error) {
	return parseElements(body, func(el overpassElement) (float64, float64, bool) {
		if el.Type != "relation" || el.Center == nil {
			return 0, 0, false
		}
		return el.Center.Lat, el.Center.Lon, true
	})
}
