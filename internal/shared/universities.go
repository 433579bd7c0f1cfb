package shared

import (
	"encoding/json"
	"fmt"
	"os"

	"unihaven/internal/domain"
)

// University describes one member institution and its campuses.
// Campus coordinates are [lat, lon] pairs.
type University struct {
	Code     string                `json:"code"`
	Name     string                `json:"name"`
	Campuses map[string][2]float64 `json:"campuses"`
}

// LoadUniversities reads the registry from path, or returns the built-in
// Hong Kong defaults when path is empty. The result is injected into the
// services at construction; nothing reads it as a global.
func LoadUniversities(path string) ([]University, error) {
	if path == "" {
		return defaultUniversities(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read universities registry: %w", err)
	}
	var doc struct {
		Universities []University `json:"universities"`
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse universities registry: %w", err)
	}
	if len(doc.Universities) == 0 {
		return nil, fmt.Errorf("universities registry %s is empty", path)
	}
	return doc.Universities, nil
}

// CampusLocations flattens the registry into "CODE - Campus" keys, the
// form accepted by the search API's campus parameter.
func CampusLocations(us []University) map[string]domain.Coords {
	out := make(map[string]domain.Coords)
	for _, u := range us {
		for label, c := range u.Campuses {
			out[u.Code+" - "+label] = domain.Coords{Lat: c[0], Lon: c[1]}
		}
	}
	return out
}

func defaultUniversities() []University {
	return []University{
		{
			Code: "HKU", Name: "The University of Hong Kong",
			Campuses: map[string][2]float64{
				"Main Campus":                       {22.28405, 114.13784},
				"Sassoon Road Campus":               {22.2675, 114.12881},
				"Swire Institute of Marine Science": {22.20805, 114.26021},
				"Kadoorie Centre":                   {22.43022, 114.11429},
				"Faculty of Dentistry":              {22.28649, 114.14426},
			},
		},
		{
			Code: "CUHK", Name: "The Chinese University of Hong Kong",
			Campuses: map[string][2]float64{
				"Main Campus": {22.41961, 114.20673},
			},
		},
		{
			Code: "HKUST", Name: "The Hong Kong University of Science and Technology",
			Campuses: map[string][2]float64{
				"Clear Water Bay": {22.33584, 114.26355},
			},
		},
	}
}
