package middleware

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Request shape mirroring the shop install payload
type installTestRequest struct {
	Domain    string `json:"domain" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	PageLimit int    `json:"page_limit" validate:"required,gte=1,lte=250"`
}

// Feature: shopify-sync, Property: Required field validation works
func TestProperty_RequiredFieldValidationWorks(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("missing required fields are rejected", prop.ForAll(
		func(includeDomain bool, includeEmail bool, includeLimit bool) bool {
			// Create request with some fields missing
			reqMap := make(map[string]interface{})

			if includeDomain {
				reqMap["domain"] = "demo-store.myshopify.com"
			}
			if includeEmail {
				reqMap["email"] = "owner@demo-store.com"
			}
			if includeLimit {
				reqMap["page_limit"] = 50
			}

			// If all fields are present, this should pass validation
			allFieldsPresent := includeDomain && includeEmail && includeLimit

			reqBody, _ := json.Marshal(reqMap)
			req := httptest.NewRequest("POST", "/test", bytes.NewReader(reqBody))
			req.Header.Set("Content-Type", "application/json")

			var testReq installTestRequest
			err := DecodeAndValidate(req, &testReq)

			if allFieldsPresent {
				return err == nil
			}
			return err != nil
		},
		gen.Bool(),
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Test that validation errors are properly formatted
func TestProperty_ValidationErrorsAreFormatted(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("validation errors include field information", prop.ForAll(
		func() bool {
			// Create request with invalid email
			reqMap := map[string]interface{}{
				"domain":     "demo-store.myshopify.com",
				"email":      "not-an-email",
				"page_limit": 50,
			}

			reqBody, _ := json.Marshal(reqMap)
			req := httptest.NewRequest("POST", "/test", bytes.NewReader(reqBody))
			req.Header.Set("Content-Type", "application/json")

			var testReq installTestRequest
			err := DecodeAndValidate(req, &testReq)

			if err == nil {
				return false // Should have validation error
			}

			// Format the errors
			validationErrors := FormatValidationErrors(err)

			// Should have at least one error
			if len(validationErrors) == 0 {
				return false
			}

			// Each error should have a field and message
			for _, ve := range validationErrors {
				if ve.Field == "" || ve.Message == "" {
					return false
				}
			}

			return true
		},
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Test that valid requests pass validation
func TestProperty_ValidRequestsPassValidation(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("valid requests pass validation", prop.ForAll(
		func(seed int) bool {
			domains := []string{
				"alpha.myshopify.com",
				"beta-outlet.myshopify.com",
				"gamma-goods.myshopify.com",
			}
			limits := []int{1, 25, 50, 100, 250}

			// Handle negative seeds
			if seed < 0 {
				seed = -seed
			}

			reqMap := map[string]interface{}{
				"domain":     domains[seed%len(domains)],
				"email":      "merchant@example.com",
				"page_limit": limits[seed%len(limits)],
			}

			reqBody, _ := json.Marshal(reqMap)
			req := httptest.NewRequest("POST", "/test", bytes.NewReader(reqBody))
			req.Header.Set("Content-Type", "application/json")

			var testReq installTestRequest
			err := DecodeAndValidate(req, &testReq)

			return err == nil
		},
		gen.Int(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Test page limit range validation
func TestProperty_PageLimitRangeValidation(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("page limit outside valid range is rejected", prop.ForAll(
		func(limit int) bool {
			reqMap := map[string]interface{}{
				"domain":     "demo-store.myshopify.com",
				"email":      "owner@demo-store.com",
				"page_limit": limit,
			}

			reqBody, _ := json.Marshal(reqMap)
			req := httptest.NewRequest("POST", "/test", bytes.NewReader(reqBody))
			req.Header.Set("Content-Type", "application/json")

			var testReq installTestRequest
			err := DecodeAndValidate(req, &testReq)

			// Page limit must stay within Shopify's 1..250 window
			if limit >= 1 && limit <= 250 {
				return err == nil
			}
			return err != nil
		},
		gen.IntRange(-50, 400),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
