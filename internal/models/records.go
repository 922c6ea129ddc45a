package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Lllllllleong/documentverification/internal/errs"
	"github.com/go-playground/validator/v10"
)

// Record is the typed form of an extracted document.
type Record interface {
	DocType() DocType
	// Identifier returns the store path and value of the document's identifying
	// number, or empty strings when the document type has none.
	Identifier() (path, value string)
}

type PanRecord struct {
	Name       string `json:"Name,omitempty"`
	FatherName string `json:"Father_name,omitempty"`
	DOB        string `json:"DOB,omitempty"`
	PANNumber  string `json:"PAN_number,omitempty" validate:"omitempty,pan"`
}

type AadharRecord struct {
	Name         string `json:"Name,omitempty"`
	DOB          string `json:"DOB,omitempty"`
	Gender       string `json:"Gender,omitempty"`
	AadharNumber string `json:"Aadhar_number,omitempty" validate:"omitempty,aadhaar"`
	Address      string `json:"Address,omitempty"`
}

type BankStatementRecord struct {
	AccountHolderName string `json:"Account_holder_name,omitempty"`
	AccountNumber     string `json:"Account_number,omitempty" validate:"omitempty,numeric,min=6,max=18"`
	Address           string `json:"Address,omitempty"`
	BankName          string `json:"Bank_name,omitempty"`
	IFSC              string `json:"IFSC,omitempty" validate:"omitempty,ifsc"`
}

type ItrRecord struct {
	Name             string `json:"Name,omitempty"`
	PANNumber        string `json:"PAN_number,omitempty" validate:"omitempty,pan"`
	AssessmentYear   string `json:"Assessment_year,omitempty"`
	EmployerName     string `json:"Employer_name,omitempty"`
	GrossTotalIncome string `json:"Gross_total_income,omitempty"`
}

type Form16Record struct {
	EmployeeName   string `json:"Employee_name,omitempty"`
	EmployeePAN    string `json:"Employee_PAN,omitempty" validate:"omitempty,pan"`
	EmployerName   string `json:"Employer_name,omitempty"`
	EmployerTAN    string `json:"Employer_TAN,omitempty" validate:"omitempty,tan"`
	AssessmentYear string `json:"Assessment_year,omitempty"`
	GrossSalary    string `json:"Gross_salary,omitempty"`
}

func (PanRecord) DocType() DocType           { return DocPAN }
func (AadharRecord) DocType() DocType        { return DocAadhar }
func (BankStatementRecord) DocType() DocType { return DocBankStatement }
func (ItrRecord) DocType() DocType           { return DocITR }
func (Form16Record) DocType() DocType        { return DocForm16 }

func (r PanRecord) Identifier() (string, string)    { return "pan.PAN_number", r.PANNumber }
func (r AadharRecord) Identifier() (string, string) { return "aadhar.Aadhar_number", r.AadharNumber }
func (BankStatementRecord) Identifier() (string, string) {
	return "", ""
}
func (r ItrRecord) Identifier() (string, string)    { return "itr.PAN_number", r.PANNumber }
func (r Form16Record) Identifier() (string, string) { return "form16.Employee_PAN", r.EmployeePAN }

// IdentifierPaths lists the secondary lookup paths of the user store.
var IdentifierPaths = []string{"pan.PAN_number", "aadhar.Aadhar_number", "form16.Employee_PAN", "itr.PAN_number"}

var (
	panPattern     = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)
	tanPattern     = regexp.MustCompile(`^[A-Z]{4}[0-9]{5}[A-Z]$`)
	aadhaarPattern = regexp.MustCompile(`^[0-9]{4} ?[0-9]{4} ?[0-9]{4}$`)
	ifscPattern    = regexp.MustCompile(`^[A-Z]{4}0[A-Z0-9]{6}$`)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	patterns := map[string]*regexp.Regexp{
		"pan":     panPattern,
		"tan":     tanPattern,
		"aadhaar": aadhaarPattern,
		"ifsc":    ifscPattern,
	}
	for tag, re := range patterns {
		_ = v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return re.MatchString(fl.Field().String())
		})
	}
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	})
	return v
}

func newRecord(t DocType) (Record, error) {
	switch t {
	case DocPAN:
		return &PanRecord{}, nil
	case DocAadhar:
		return &AadharRecord{}, nil
	case DocBankStatement:
		return &BankStatementRecord{}, nil
	case DocITR:
		return &ItrRecord{}, nil
	case DocForm16:
		return &Form16Record{}, nil
	}
	return nil, fmt.Errorf("unknown document type %q", t)
}

// Coerce converts an untyped model payload into the typed variant for t.
// Keys are matched case-insensitively, scalar values are stringified. Unknown
// keys and values failing format validation are returned as warnings; a
// payload that fills none of the variant's fields is rejected.
func Coerce(t DocType, raw DocumentRecord) (Record, []string, error) {
	const op = "models.Coerce"
	rec, err := newRecord(t)
	if err != nil {
		return nil, nil, errs.Wrap(errs.KindInput, op, err, "")
	}

	known := jsonKeys(rec)
	normalized := make(map[string]string, len(raw))
	var warnings []string

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		field, ok := known[canonicalKey(k)]
		if !ok {
			warnings = append(warnings, fmt.Sprintf("unexpected field %q", k))
			continue
		}
		s, ok := scalarString(raw[k])
		if !ok {
			warnings = append(warnings, fmt.Sprintf("field %q has non-scalar value", k))
			continue
		}
		if s == "" {
			continue
		}
		normalized[field] = s
	}

	if len(normalized) == 0 {
		body, _ := json.Marshal(raw)
		return nil, warnings, errs.E(errs.KindMalformedResponse, op,
			fmt.Sprintf("no %s fields found in extracted record", t)).WithDetail(string(body))
	}

	buf, err := json.Marshal(normalized)
	if err != nil {
		return nil, warnings, errs.Wrap(errs.KindMalformedResponse, op, err, "")
	}
	if err := json.Unmarshal(buf, rec); err != nil {
		return nil, warnings, errs.Wrap(errs.KindMalformedResponse, op, err, "")
	}
	normalizeIdentifiers(rec)

	if err := validate.Struct(rec); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				warnings = append(warnings, fmt.Sprintf("field %q failed %q check (value %v)", fe.Field(), fe.Tag(), fe.Value()))
			}
		} else {
			return nil, warnings, errs.Wrap(errs.KindValidation, op, err, "")
		}
	}
	return rec, warnings, nil
}

// Fields flattens a typed record back to the persisted field map, omitting
// empty fields.
func Fields(r Record) DocumentRecord {
	buf, err := json.Marshal(r)
	if err != nil {
		return DocumentRecord{}
	}
	out := DocumentRecord{}
	_ = json.Unmarshal(buf, &out)
	return out
}

func normalizeIdentifiers(r Record) {
	upper := func(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }
	switch v := r.(type) {
	case *PanRecord:
		v.PANNumber = upper(v.PANNumber)
	case *ItrRecord:
		v.PANNumber = upper(v.PANNumber)
	case *Form16Record:
		v.EmployeePAN = upper(v.EmployeePAN)
		v.EmployerTAN = upper(v.EmployerTAN)
	case *BankStatementRecord:
		v.IFSC = upper(v.IFSC)
		v.AccountNumber = strings.ReplaceAll(strings.TrimSpace(v.AccountNumber), " ", "")
	case *AadharRecord:
		v.AadharNumber = strings.TrimSpace(v.AadharNumber)
	}
}

// jsonKeys maps canonical key -> json tag for the struct behind rec.
func jsonKeys(rec Record) map[string]string {
	t := reflect.TypeOf(rec).Elem()
	out := make(map[string]string, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		name := strings.SplitN(t.Field(i).Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			continue
		}
		out[canonicalKey(name)] = name
	}
	return out
}

func canonicalKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(k)
}

func scalarString(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", true
	case string:
		return strings.TrimSpace(x), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case json.Number:
		return x.String(), true
	case bool:
		return strconv.FormatBool(x), true
	}
	return "", false
}
