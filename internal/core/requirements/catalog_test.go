package requirements

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kirillkom/rental-intake/internal/core/domain"
)

func TestResolveUnsetStatusReturnsEmptyList(t *testing.T) {
	reqs := Default().Resolve(domain.EmploymentUnset, domain.RolePrimaryTenant)
	if reqs == nil || len(reqs) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", reqs)
	}
}

func TestResolveUnknownStatusFailsSoft(t *testing.T) {
	reqs := Default().Resolve(domain.EmploymentStatus("astronaut"), domain.RoleCoTenant)
	if len(reqs) != 0 {
		t.Fatalf("expected empty list, got %d items", len(reqs))
	}
}

func TestResolveEmployeeOrderIsDeterministic(t *testing.T) {
	want := []string{"id_document", "employment_contract", "employer_statement", "payslips", "bank_statements", "landlord_statement"}
	for i := 0; i < 3; i++ {
		reqs := Default().Resolve(domain.EmploymentEmployee, domain.RolePrimaryTenant)
		if len(reqs) != len(want) {
			t.Fatalf("expected %d requirements, got %d", len(want), len(reqs))
		}
		for j, req := range reqs {
			if req.Type != want[j] {
				t.Fatalf("position %d: expected %s, got %s", j, want[j], req.Type)
			}
		}
	}
}

func TestResolveGuarantorAddsRequiredDeclaration(t *testing.T) {
	req, ok := Default().Lookup(domain.EmploymentRetired, domain.RoleGuarantor, "guarantor_declaration")
	if !ok {
		t.Fatalf("expected guarantor declaration for guarantor")
	}
	if !req.Required {
		t.Fatalf("guarantor declaration must be required")
	}
	if _, ok := Default().Lookup(domain.EmploymentRetired, domain.RoleGuarantor, "landlord_statement"); ok {
		t.Fatalf("guarantor must not get landlord statement")
	}
}

func TestPayslipsAreMultiFileThreeOfThree(t *testing.T) {
	req, ok := Default().Lookup(domain.EmploymentEmployee, domain.RoleCoTenant, "payslips")
	if !ok {
		t.Fatalf("expected payslips requirement")
	}
	if !req.Cardinality.Multi || req.Cardinality.MinFiles != 3 || req.Cardinality.MaxFiles != 3 {
		t.Fatalf("unexpected cardinality: %+v", req.Cardinality)
	}
	if req.MinFiles() != 3 {
		t.Fatalf("expected MinFiles 3, got %d", req.MinFiles())
	}
}

func TestParseRejectsInvalidCatalogs(t *testing.T) {
	cases := map[string]string{
		"unknown status": "statuses:\n  pilot:\n    - type: a\n",
		"unknown role":   "roles:\n  landlord:\n    - type: a\n",
		"missing type":   "statuses:\n  student:\n    - label: x\n",
		"duplicate type": "statuses:\n  student:\n    - type: a\n    - type: a\n",
		"min above max":  "statuses:\n  student:\n    - type: a\n      cardinality: {multi: true, min_files: 4, max_files: 2}\n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(raw)); err == nil {
				t.Fatalf("expected parse error")
			}
		})
	}
}

func TestLoadOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	raw := "statuses:\n  student:\n    - type: enrollment_proof\n      required: true\n"
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	catalog, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	reqs := catalog.Resolve(domain.EmploymentStudent, domain.RolePrimaryTenant)
	if len(reqs) != 1 || reqs[0].Label != "enrollment_proof" {
		t.Fatalf("unexpected requirements: %+v", reqs)
	}
	if len(catalog.Resolve(domain.EmploymentEmployee, domain.RolePrimaryTenant)) != 0 {
		t.Fatalf("override must replace the default catalog")
	}
}
