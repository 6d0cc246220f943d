package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/san-kum/smctune/internal/control"
	"github.com/san-kum/smctune/internal/experiment"
	"github.com/san-kum/smctune/internal/metrics"
	"github.com/san-kum/smctune/internal/optim"
	"gopkg.in/yaml.v3"
)

const (
	resultFile  = "result.yaml"
	historyFile = "history.csv"
	statesFile  = "states.csv"
)

const (
	KindTune     = "tune"
	KindSimulate = "simulate"
)

var ErrRunNotFound = errors.New("storage: run not found")

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

func (s *Store) Dir(runID string) string {
	return filepath.Join(s.baseDir, runID)
}

// Record is the persisted summary of one run. Gains and Options are
// enough to rebuild the controller without repeating the search.
type Record struct {
	ID        string          `yaml:"id"`
	Kind      string          `yaml:"kind"`
	Timestamp time.Time       `yaml:"timestamp"`
	Variant   string          `yaml:"variant"`
	Gains     []float64       `yaml:"gains"`
	Options   control.Options `yaml:"options"`
	Cost      float64         `yaml:"cost"`
	Seed      int64           `yaml:"seed"`

	Method      string           `yaml:"method,omitempty"`
	Stop        string           `yaml:"stop,omitempty"`
	Iterations  int              `yaml:"iterations,omitempty"`
	Evaluations int              `yaml:"evaluations,omitempty"`
	Stagnated   bool             `yaml:"stagnated,omitempty"`
	Baseline    metrics.Baseline `yaml:"baseline"`
	Degenerate  bool             `yaml:"degenerate,omitempty"`
	Stats       experiment.Stats `yaml:"stats,omitempty"`

	Metrics map[string]float64 `yaml:"metrics,omitempty"`
}

// ControllerConfig validates the stored gains again and returns the
// immutable controller config.
func (r *Record) ControllerConfig(reg *control.Registry) (control.Config, error) {
	v, err := control.ParseVariant(r.Variant)
	if err != nil {
		return control.Config{}, err
	}
	return reg.Build(v, r.Gains, r.Options)
}

// SaveTune persists a tuning report with its convergence history.
func (s *Store) SaveTune(report *experiment.TuneReport, opts control.Options, seed int64) (string, error) {
	rec := &Record{
		ID:         uuid.NewString(),
		Kind:       KindTune,
		Timestamp:  time.Now().UTC(),
		Variant:    string(report.Variant),
		Gains:      report.Gains,
		Options:    opts,
		Cost:       report.Cost,
		Seed:       seed,
		Method:     report.Method,
		Baseline:   report.Baseline,
		Degenerate: report.Degenerate,
		Stats:      report.Stats,
	}
	var history []optim.IterationRecord
	if report.Result != nil {
		rec.Stop = string(report.Result.Stop)
		rec.Iterations = report.Result.Iterations
		rec.Evaluations = report.Result.Evaluations
		rec.Stagnated = report.Result.Stagnated
		history = report.Result.History
	}

	runDir := s.Dir(rec.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}
	if err := writeRecord(filepath.Join(runDir, resultFile), rec); err != nil {
		return "", err
	}
	if err := writeHistory(filepath.Join(runDir, historyFile), history); err != nil {
		return "", err
	}
	return rec.ID, nil
}

// SaveSimulation persists a reference run and its state trajectory.
func (s *Store) SaveSimulation(report *experiment.SimulationReport, opts control.Options, seed int64) (string, error) {
	res := report.Result
	rec := &Record{
		ID:        uuid.NewString(),
		Kind:      KindSimulate,
		Timestamp: time.Now().UTC(),
		Variant:   string(report.Variant),
		Gains:     report.Gains,
		Options:   opts,
		Cost:      report.Breakdown.Total,
		Seed:      seed,
		Metrics:   make(map[string]float64, len(res.Metrics)+2),
	}
	for k, v := range res.Metrics {
		rec.Metrics[k] = v
	}
	rec.Metrics["chatter_high_freq_ratio"] = report.Chattering.HighFreqRatio
	rec.Metrics["valid_until"] = float64(res.ValidUntil)

	runDir := s.Dir(rec.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}
	if err := writeRecord(filepath.Join(runDir, resultFile), rec); err != nil {
		return "", err
	}

	f, err := os.Create(filepath.Join(runDir, statesFile))
	if err != nil {
		return "", err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if len(res.States) == 0 {
		return rec.ID, nil
	}

	header := []string{"time"}
	for i := range res.States[0] {
		header = append(header, fmt.Sprintf("x%d", i))
	}
	header = append(header, "u", "s")
	if err := w.Write(header); err != nil {
		return "", err
	}

	for i := range res.States {
		row := []string{formatFloat(res.Times[i])}
		for _, val := range res.States[i] {
			row = append(row, formatFloat(val))
		}
		if i < len(res.Controls) {
			row = append(row, formatFloat(res.Controls[i]), formatFloat(res.Surfaces[i]))
		} else {
			row = append(row, "0", "0")
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	return rec.ID, w.Error()
}

func (s *Store) List() ([]Record, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Record{}, nil
		}
		return nil, err
	}

	runs := make([]Record, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		rec, err := readRecord(filepath.Join(s.baseDir, entry.Name(), resultFile))
		if err != nil {
			continue
		}
		runs = append(runs, *rec)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*Record, error) {
	rec, err := readRecord(filepath.Join(s.Dir(runID), resultFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return rec, err
}

func (s *Store) LoadHistory(runID string) ([]optim.IterationRecord, error) {
	records, err := readCSV(filepath.Join(s.Dir(runID), historyFile))
	if err != nil {
		return nil, err
	}

	out := make([]optim.IterationRecord, 0, len(records))
	for _, record := range records {
		if len(record) < 4 {
			continue
		}
		it, err := strconv.Atoi(record[0])
		if err != nil {
			continue
		}
		vals := make([]float64, 3)
		for j := range vals {
			vals[j], _ = strconv.ParseFloat(record[j+1], 64)
		}
		out = append(out, optim.IterationRecord{Iteration: it, Best: vals[0], Mean: vals[1], Diversity: vals[2]})
	}
	return out, nil
}

// LoadStates returns the state rows, the control column, and the sample
// times of a simulation run.
func (s *Store) LoadStates(runID string) ([][]float64, []float64, []float64, error) {
	records, err := readCSV(filepath.Join(s.Dir(runID), statesFile))
	if err != nil {
		return nil, nil, nil, err
	}

	times := make([]float64, 0, len(records))
	states := make([][]float64, 0, len(records))
	controls := make([]float64, 0, len(records))

	for _, record := range records {
		if len(record) < 3 {
			continue
		}
		t, err := strconv.ParseFloat(record[0], 64)
		if err != nil {
			continue
		}
		times = append(times, t)

		state := make([]float64, 0, len(record)-3)
		for j := 1; j < len(record)-2; j++ {
			val, err := strconv.ParseFloat(record[j], 64)
			if err != nil {
				continue
			}
			state = append(state, val)
		}
		states = append(states, state)

		u, _ := strconv.ParseFloat(record[len(record)-2], 64)
		controls = append(controls, u)
	}
	return states, controls, times, nil
}

func writeRecord(path string, rec *Record) error {
	data, err := yaml.Marshal(rec)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func readRecord(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &rec, nil
}

func writeHistory(path string, history []optim.IterationRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"iteration", "best", "mean", "diversity"}); err != nil {
		return err
	}
	for _, rec := range history {
		row := []string{
			strconv.Itoa(rec.Iteration),
			formatFloat(rec.Best),
			formatFloat(rec.Mean),
			formatFloat(rec.Diversity),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// readCSV returns the data rows of a CSV file, header dropped.
func readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return [][]string{}, nil
	}
	return records[1:], nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
