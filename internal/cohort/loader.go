package cohort

import (
    "bufio"
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "strings"

    "discharge_pipeline/features"
)

// ErrMalformed marks structurally invalid input for one admission: the
// record cannot be trusted and the unit is a hard failure. Sparse but
// well-formed records are not malformed.
var ErrMalformed = errors.New("malformed admission record")

// Loader resolves admission ids to records. The directory implementation
// below is the production one; tests substitute in-memory fixtures.
type Loader interface {
    Load(ctx context.Context, admissionID string) (features.Admission, error)
}

// ReadCohortFile reads one admission id per line. Blank lines and lines
// starting with # are skipped; duplicates keep their first position.
func ReadCohortFile(path string) ([]string, error) {
    f, err := os.Open(path)
    if err != nil {
        return nil, fmt.Errorf("open cohort file: %w", err)
    }
    defer f.Close()

    var ids []string
    seen := make(map[string]bool)
    scanner := bufio.NewScanner(f)
    for scanner.Scan() {
        line := strings.TrimSpace(scanner.Text())
        if line == "" || strings.HasPrefix(line, "#") {
            continue
        }
        if seen[line] {
            continue
        }
        seen[line] = true
        ids = append(ids, line)
    }
    if err := scanner.Err(); err != nil {
        return nil, fmt.Errorf("read cohort file: %w", err)
    }
    return ids, nil
}

// DirLoader reads admission_<id>.json documents from a records directory.
type DirLoader struct {
    Dir string
}

func NewDirLoader(dir string) *DirLoader {
    return &DirLoader{Dir: dir}
}

// Load decodes and validates one admission record. Series are sorted by
// timestamp here so every downstream consumer can rely on ordering.
func (l *DirLoader) Load(ctx context.Context, admissionID string) (features.Admission, error) {
    if err := ctx.Err(); err != nil {
        return features.Admission{}, err
    }
    path := filepath.Join(l.Dir, "admission_"+admissionID+".json")
    raw, err := os.ReadFile(path)
    if err != nil {
        if os.IsNotExist(err) {
            return features.Admission{}, fmt.Errorf("%w: admission %s: record file missing", ErrMalformed, admissionID)
        }
        return features.Admission{}, fmt.Errorf("read record for admission %s: %w", admissionID, err)
    }

    var adm features.Admission
    if err := json.Unmarshal(raw, &adm); err != nil {
        return features.Admission{}, fmt.Errorf("%w: admission %s: %v", ErrMalformed, admissionID, err)
    }
    if adm.AdmissionID == "" {
        return features.Admission{}, fmt.Errorf("%w: admission %s: record missing admission_id", ErrMalformed, admissionID)
    }
    if adm.AdmissionID != admissionID {
        return features.Admission{}, fmt.Errorf("%w: admission %s: record claims id %s", ErrMalformed, admissionID, adm.AdmissionID)
    }

    for label := range adm.Measurements {
        features.SortPoints(adm.Measurements[label])
    }
    for label := range adm.Labs {
        features.SortLabs(adm.Labs[label])
    }
    features.SortOutputs(adm.Outputs)
    return adm, nil
}
