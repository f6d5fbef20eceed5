package diagnosis

import (
	"errors"
	"fmt"
)

// ErrPlantNotFound is returned by CareGuide for a plant the catalog does not know.
var ErrPlantNotFound = errors.New("plant not found")

// UnknownClassError means the model produced a class the catalog cannot map.
// There is no fallback diagnosis.
type UnknownClassError struct {
	Index int
	Label string
}

func (e *UnknownClassError) Error() string {
	if e.Label != "" {
		return fmt.Sprintf("unknown class label %q", e.Label)
	}
	return fmt.Sprintf("unknown class index %d", e.Index)
}

// Diagnosis is the resolved information for one class.
type Diagnosis struct {
	PlantName      string
	DiseaseName    string
	Description    string
	Symptoms       []string
	Treatments     []string
	PreventionTips []string
	IsHealthy      bool
}

type Resolver struct {
	catalog *Catalog
	byLabel map[string]int
	plants  map[string]Plant
}

func NewResolver(c *Catalog) *Resolver {
	r := &Resolver{
		catalog: c,
		byLabel: make(map[string]int, len(c.Classes)),
		plants:  make(map[string]Plant, len(c.Plants)),
	}
	for i, e := range c.Classes {
		r.byLabel[normalize(e.Label)] = i
	}
	for _, p := range c.Plants {
		r.plants[normalize(p.Name)] = p
	}
	return r
}

// Classes returns the number of classes in the mapping.
func (r *Resolver) Classes() int {
	return len(r.catalog.Classes)
}

func (r *Resolver) ResolveIndex(i int) (Diagnosis, error) {
	if i < 0 || i >= len(r.catalog.Classes) {
		return Diagnosis{}, &UnknownClassError{Index: i}
	}
	return toDiagnosis(r.catalog.Classes[i]), nil
}

func (r *Resolver) ResolveLabel(label string) (Diagnosis, error) {
	i, ok := r.byLabel[normalize(label)]
	if !ok {
		return Diagnosis{}, &UnknownClassError{Index: -1, Label: label}
	}
	return toDiagnosis(r.catalog.Classes[i]), nil
}

func toDiagnosis(e Entry) Diagnosis {
	return Diagnosis{
		PlantName:      e.Plant,
		DiseaseName:    e.Disease,
		Description:    e.Description,
		Symptoms:       cloneStrings(e.Symptoms),
		Treatments:     cloneStrings(e.Treatments),
		PreventionTips: cloneStrings(e.Prevention),
		IsHealthy:      e.Healthy,
	}
}

// CareGuide is general and disease-specific advice for a plant.
type CareGuide struct {
	PlantName           string   `json:"plant_name"`
	DiseaseName         *string  `json:"disease_name"`
	GeneralCare         []string `json:"general_care"`
	DiseaseSpecificCare []string `json:"disease_specific_care"`
	PreventionTips      []string `json:"prevention_tips"`
	TreatmentOptions    []string `json:"treatment_options"`
}

// CareGuide looks up advice for plant, and for disease when it is not empty.
// Without a disease the guide carries the plant's healthy prevention tips.
func (r *Resolver) CareGuide(plant, disease string) (CareGuide, error) {
	p, ok := r.plants[normalize(plant)]
	if !ok {
		return CareGuide{}, fmt.Errorf("%w: %s", ErrPlantNotFound, plant)
	}

	guide := CareGuide{
		PlantName:           p.Name,
		GeneralCare:         cloneStrings(p.Care),
		DiseaseSpecificCare: []string{},
		PreventionTips:      []string{},
		TreatmentOptions:    []string{},
	}

	if normalize(disease) == "" {
		for _, e := range r.catalog.Classes {
			if e.Healthy && normalize(e.Plant) == normalize(p.Name) {
				guide.PreventionTips = cloneStrings(e.Prevention)
				break
			}
		}
		return guide, nil
	}

	for _, e := range r.catalog.Classes {
		if normalize(e.Plant) != normalize(p.Name) || normalize(e.Disease) != normalize(disease) {
			continue
		}
		name := e.Disease
		guide.DiseaseName = &name
		guide.DiseaseSpecificCare = cloneStrings(e.Care)
		guide.PreventionTips = cloneStrings(e.Prevention)
		guide.TreatmentOptions = cloneStrings(e.Treatments)
		return guide, nil
	}

	return CareGuide{}, &UnknownClassError{Index: -1, Label: p.Name + "/" + disease}
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
