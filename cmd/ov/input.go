package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"oversight/internal/domain"
	"oversight/internal/engine"
	"oversight/internal/geofence"
	"oversight/internal/repo"
)

// objectFile is the YAML form accepted by `object create --file`.
type objectFile struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Address     string `yaml:"address"`
	Description string `yaml:"description"`
	Polygon     []struct {
		Lat float64 `yaml:"lat"`
		Lng float64 `yaml:"lng"`
	} `yaml:"polygon"`
	Schedule *struct {
		StartDate string `yaml:"start_date"`
		EndDate   string `yaml:"end_date"`
		WorkItems []struct {
			ID          string  `yaml:"id"`
			Name        string  `yaml:"name"`
			Description string  `yaml:"description"`
			Unit        string  `yaml:"unit"`
			Amount      float64 `yaml:"amount"`
			StartDate   string  `yaml:"start_date"`
			EndDate     string  `yaml:"end_date"`
		} `yaml:"work_items"`
	} `yaml:"schedule"`
}

func loadObjectFile(path string) (engine.ObjectCreateOptions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return engine.ObjectCreateOptions{}, err
	}
	return parseObjectYAML(data)
}

func parseObjectYAML(data []byte) (engine.ObjectCreateOptions, error) {
	var f objectFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return engine.ObjectCreateOptions{}, fmt.Errorf("invalid object yaml: %w", err)
	}
	opts := engine.ObjectCreateOptions{
		ID:          f.ID,
		Name:        f.Name,
		Address:     f.Address,
		Description: f.Description,
	}
	for _, p := range f.Polygon {
		opts.Polygon = append(opts.Polygon, domain.Point{Lat: p.Lat, Lng: p.Lng})
	}
	if f.Schedule != nil {
		opts.Schedule = &engine.ScheduleInput{StartDate: f.Schedule.StartDate, EndDate: f.Schedule.EndDate}
		for _, w := range f.Schedule.WorkItems {
			opts.Schedule.WorkItems = append(opts.Schedule.WorkItems, engine.WorkItemInput{
				ID:          w.ID,
				Name:        w.Name,
				Description: w.Description,
				Unit:        w.Unit,
				Amount:      w.Amount,
				StartDate:   w.StartDate,
				EndDate:     w.EndDate,
			})
		}
	}
	return opts, nil
}

// parsePolygon reads "lat,lng;lat,lng;..." pairs.
func parsePolygon(raw string) ([]domain.Point, error) {
	var pts []domain.Point
	for _, pair := range strings.Split(raw, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.Split(pair, ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid polygon point %q (want lat,lng)", pair)
		}
		lat, err := parseFloat(parts[0], "latitude")
		if err != nil {
			return nil, err
		}
		lng, err := parseFloat(parts[1], "longitude")
		if err != nil {
			return nil, err
		}
		pts = append(pts, domain.Point{Lat: lat, Lng: lng})
	}
	return pts, nil
}

// parseWorkItem reads "id:name:unit:amount:start:end". Trailing fields may be omitted.
func parseWorkItem(raw string) (engine.WorkItemInput, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 2 || len(parts) > 6 {
		return engine.WorkItemInput{}, fmt.Errorf("invalid work item %q (want id:name:unit:amount:start:end)", raw)
	}
	for len(parts) < 6 {
		parts = append(parts, "")
	}
	item := engine.WorkItemInput{
		ID:        strings.TrimSpace(parts[0]),
		Name:      strings.TrimSpace(parts[1]),
		Unit:      strings.TrimSpace(parts[2]),
		StartDate: strings.TrimSpace(parts[4]),
		EndDate:   strings.TrimSpace(parts[5]),
	}
	if amount := strings.TrimSpace(parts[3]); amount != "" {
		v, err := parseFloat(amount, "amount")
		if err != nil {
			return engine.WorkItemInput{}, err
		}
		item.Amount = v
	}
	return item, nil
}

func parseFloat(s, what string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", what, s)
	}
	return f, nil
}

func readUpload(path, docType string) (engine.DocumentUpload, error) {
	info, err := os.Stat(path)
	if err != nil {
		return engine.DocumentUpload{}, err
	}
	if info.Size() > engine.MaxDocumentBytes {
		return engine.DocumentUpload{}, fmt.Errorf("%s exceeds %d bytes", path, engine.MaxDocumentBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return engine.DocumentUpload{}, err
	}
	return engine.DocumentUpload{Name: filepath.Base(path), Type: docType, Data: data}, nil
}

func positionOf(lat, lng, accuracy float64, at time.Time) geofence.Position {
	return geofence.Position{Lat: lat, Lng: lng, Accuracy: accuracy, Timestamp: at.UTC()}
}

func eventFilters(objectID, evtType string, n int) repo.EventFilters {
	if n <= 0 {
		n = 20
	}
	return repo.EventFilters{ObjectID: objectID, Type: evtType, Limit: n}
}
