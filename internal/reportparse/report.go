package reportparse

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"car-report/internal/apperr"

	"github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/cast"
)

// Text is a scalar the model may emit as a string, a number, a boolean or
// null. Non-scalars are kept as compact JSON.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0, bytes.Equal(data, []byte("null")):
		*t = ""
	case data[0] == '"':
		var s string
		if err := sonic.ConfigStd.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
	default:
		*t = Text(data)
	}
	return nil
}

func (t Text) String() string { return string(t) }

// Or returns fallback when t is blank.
func (t Text) Or(fallback string) string {
	if strings.TrimSpace(string(t)) == "" {
		return fallback
	}
	return string(t)
}

type SafetyChecks struct {
	Accident Text `json:"accident"`
	Fire     Text `json:"fire"`
	Flood    Text `json:"flood"`
}

type ComponentCheck struct {
	Status      Text `json:"status"`
	Note        Text `json:"note"`
	Date        Text `json:"date"`
	Description Text `json:"description"`
}

type Components struct {
	Airbags        *ComponentCheck `json:"airbags"`
	Seatbelts      *ComponentCheck `json:"seatbelts"`
	Axles          *ComponentCheck `json:"axles"`
	Suspension     *ComponentCheck `json:"suspension"`
	Steering       *ComponentCheck `json:"steering"`
	Brakes         *ComponentCheck `json:"brakes"`
	AirConditioner *ComponentCheck `json:"airConditioner"`
}

type MileageEntry struct {
	Date    Text `json:"date"`
	Mileage Text `json:"mileage"`
	Status  Text `json:"status"`
}

type MileageSummary struct {
	MaxMileage       Text `json:"maxMileage"`
	Anomalies        Text `json:"anomalies"`
	EstimatedCurrent Text `json:"estimatedCurrent"`
	AvgYearly        Text `json:"avgYearly"`
}

type ServiceRecord struct {
	Date        Text   `json:"date"`
	Mileage     Text   `json:"mileage"`
	Description Text   `json:"description"`
	Materials   []Text `json:"materials"`
}

type ServiceHistory struct {
	Period      Text            `json:"period"`
	TotalVisits Text            `json:"totalVisits"`
	Repairs     Text            `json:"repairs"`
	Maintenance Text            `json:"maintenance"`
	Records     []ServiceRecord `json:"records"`
}

type VehicleDimensions struct {
	Length Text `json:"length"`
	Width  Text `json:"width"`
	Height Text `json:"height"`
}

type VehicleInfo struct {
	Year         Text               `json:"year"`
	EngineVolume Text               `json:"engineVolume"`
	Power        Text               `json:"power"`
	Transmission Text               `json:"transmission"`
	Dimensions   *VehicleDimensions `json:"dimensions"`
	Weight       Text               `json:"weight"`
	Production   Text               `json:"production"`
}

type OwnerInfo struct {
	OwnerType        Text `json:"ownerType"`
	RegistrationTime Text `json:"registrationTime"`
	OwnersCount      Text `json:"ownersCount"`
	Usage            Text `json:"usage"`
}

type InsuranceInfo struct {
	OSAGO     Text `json:"osago"`
	KASKO     Text `json:"kasko"`
	Claims    Text `json:"claims"`
	MaxDamage Text `json:"maxDamage"`
}

type Conclusion struct {
	Accidents         Text `json:"accidents"`
	BodyAnomalies     Text `json:"bodyAnomalies"`
	InsuranceRepairs  Text `json:"insuranceRepairs"`
	ComponentProblems Text `json:"componentProblems"`
	Recommendation    Text `json:"recommendation"`
}

// VehicleReport is the typed view of a Record. Every section is optional.
type VehicleReport struct {
	Brand               Text            `json:"brand"`
	Model               Text            `json:"model"`
	VIN                 Text            `json:"vin"`
	FuelType            Text            `json:"fuelType"`
	QueryDate           Text            `json:"queryDate"`
	Rating              Text            `json:"rating"`
	ComponentClass      Text            `json:"componentClass"`
	MileageAnomalies    Text            `json:"mileageAnomalies"`
	LastMileage         Text            `json:"lastMileage"`
	LastMileageDate     Text            `json:"lastMileageDate"`
	MaintenanceHabits   Text            `json:"maintenanceHabits"`
	LastMaintenanceDate Text            `json:"lastMaintenanceDate"`
	SafetyChecks        *SafetyChecks   `json:"safetyChecks"`
	Components          *Components     `json:"components"`
	MileageHistory      []MileageEntry  `json:"mileageHistory"`
	MileageSummary      *MileageSummary `json:"mileageSummary"`
	MaintenanceFreq     Text            `json:"maintenanceFrequency"`
	LastDealerVisit     Text            `json:"lastDealerVisit"`
	YearsWithoutDealer  Text            `json:"yearsWithoutDealer"`
	ServiceHistory      *ServiceHistory `json:"serviceHistory"`
	VehicleInfo         *VehicleInfo    `json:"vehicleInfo"`
	OwnerInfo           *OwnerInfo      `json:"ownerInfo"`
	InsuranceInfo       *InsuranceInfo  `json:"insuranceInfo"`
	Conclusion          *Conclusion     `json:"conclusion"`
}

// sections maps top-level keys to the fields they decode into.
func (v *VehicleReport) sections() map[string]any {
	return map[string]any{
		"brand":                &v.Brand,
		"model":                &v.Model,
		"vin":                  &v.VIN,
		"fuelType":             &v.FuelType,
		"queryDate":            &v.QueryDate,
		"rating":               &v.Rating,
		"componentClass":       &v.ComponentClass,
		"mileageAnomalies":     &v.MileageAnomalies,
		"lastMileage":          &v.LastMileage,
		"lastMileageDate":      &v.LastMileageDate,
		"maintenanceHabits":    &v.MaintenanceHabits,
		"lastMaintenanceDate":  &v.LastMaintenanceDate,
		"safetyChecks":         &v.SafetyChecks,
		"components":           &v.Components,
		"mileageHistory":       &v.MileageHistory,
		"mileageSummary":       &v.MileageSummary,
		"maintenanceFrequency": &v.MaintenanceFreq,
		"lastDealerVisit":      &v.LastDealerVisit,
		"yearsWithoutDealer":   &v.YearsWithoutDealer,
		"serviceHistory":       &v.ServiceHistory,
		"vehicleInfo":          &v.VehicleInfo,
		"ownerInfo":            &v.OwnerInfo,
		"insuranceInfo":        &v.InsuranceInfo,
		"conclusion":           &v.Conclusion,
	}
}

// Decode maps rec onto a VehicleReport. A section whose shape does not match
// is left empty and reported in the returned error; the rest still decode.
func Decode(rec Record) (*VehicleReport, error) {
	var report VehicleReport

	var errs []error
	for key, target := range report.sections() {
		value, ok := rec.Get(key)
		if !ok || value == nil {
			continue
		}
		data, err := sonic.ConfigStd.Marshal(value)
		if err == nil {
			err = sonic.ConfigStd.Unmarshal(data, target)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	if len(errs) > 0 {
		return &report, apperr.Decode("report sections did not match the expected shape", errors.Join(errs...))
	}
	return &report, nil
}

// Summary is the list-row projection of a record.
type Summary struct {
	VIN     string `json:"vin"`
	Brand   string `json:"brand"`
	Model   string `json:"model"`
	Rating  string `json:"rating"`
	Mileage string `json:"mileage"`
}

// SummaryOf extracts identity fields with the fallbacks shown in listings.
func SummaryOf(rec Record) Summary {
	s := Summary{
		VIN:     strings.TrimSpace(rec.String("vin")),
		Brand:   strings.TrimSpace(rec.String("brand")),
		Model:   strings.TrimSpace(rec.String("model")),
		Rating:  rec.String("rating"),
		Mileage: rec.String("lastMileage"),
	}
	if s.VIN == "" {
		s.VIN = UnknownVIN
	}
	if s.Brand == "" {
		s.Brand = UnknownBrand
	}
	if s.Mileage == "" {
		s.Mileage = rec.String("mileageSummary.maxMileage")
	}
	return s
}

// Issue is a single validation finding. Issues are advisory and never block
// persistence.
type Issue struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

type checkedFields struct {
	VIN         string   `validate:"omitempty,len=17,alphanum"`
	Rating      *float64 `validate:"omitempty,gte=0,lte=5"`
	LastMileage *float64 `validate:"omitempty,gte=0"`
	OwnersCount *float64 `validate:"omitempty,gte=0"`
}

var validate = validator.New()

// Validate checks the business plausibility of a decoded report. Values the
// model returned as free text are skipped rather than flagged.
func Validate(report *VehicleReport) []Issue {
	if report == nil {
		return nil
	}
	fields := checkedFields{
		VIN:         strings.ToUpper(strings.TrimSpace(report.VIN.String())),
		Rating:      number(report.Rating),
		LastMileage: number(report.LastMileage),
	}
	if report.OwnerInfo != nil {
		fields.OwnersCount = number(report.OwnerInfo.OwnersCount)
	}

	err := validate.Struct(fields)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []Issue{{Message: err.Error()}}
	}

	issues := make([]Issue, 0, len(verrs))
	for _, fe := range verrs {
		issues = append(issues, Issue{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Value:   cast.ToString(deref(fe.Value())),
			Message: fe.Error(),
		})
	}
	return issues
}

func number(t Text) *float64 {
	s := strings.TrimSpace(t.String())
	if s == "" {
		return nil
	}
	f, err := cast.ToFloat64E(s)
	if err != nil {
		return nil
	}
	return &f
}

func deref(v any) any {
	if p, ok := v.(*float64); ok && p != nil {
		return *p
	}
	return v
}
