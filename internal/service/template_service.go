// internal/service/template_service.go
package service

import (
	"regexp"
	"strings"

	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/model"
)

var placeholderRe = regexp.MustCompile(`\{([A-Za-z_]+)\}`)

// RenderTemplate substitutes {key} placeholders from data. Keys match
// case-insensitively; unknown placeholders are left as written.
func RenderTemplate(template string, data map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(m string) string {
		key := strings.ToLower(m[1 : len(m)-1])
		if v, ok := data[key]; ok {
			return v
		}
		return m
	})
}

// PersonalizationData builds the placeholder values for a lead, with the
// fallbacks used when a field is empty. Any argument may be nil.
func PersonalizationData(lead *model.Lead, org *model.Organization, prop *model.Property) map[string]string {
	var first, last, full string
	if lead != nil {
		first = strings.TrimSpace(lead.FirstName)
		last = strings.TrimSpace(lead.LastName)
		full = strings.TrimSpace(lead.FullName)
	}
	tokens := strings.Fields(full)
	if first == "" && len(tokens) > 0 {
		first = tokens[0]
	}
	if first == "" {
		first = "there"
	}
	if last == "" && len(tokens) > 1 {
		last = tokens[len(tokens)-1]
	}
	if full == "" {
		full = strings.TrimSpace(first + " " + last)
	}

	property := "the property"
	if prop != nil && strings.TrimSpace(prop.Address) != "" {
		property = strings.TrimSpace(prop.Address)
	}

	orgName, orgPhone := "our team", ""
	if org != nil {
		if strings.TrimSpace(org.Name) != "" {
			orgName = strings.TrimSpace(org.Name)
		}
		orgPhone = strings.TrimSpace(org.Phone)
	}

	return map[string]string{
		"first_name":       first,
		"name":             first,
		"last_name":        last,
		"full_name":        full,
		"property":         property,
		"property_address": property,
		"org_name":         orgName,
		"organization":     orgName,
		"org_phone":        orgPhone,
	}
}

// Personalize renders a template for one lead. It never fails.
func Personalize(template string, lead *model.Lead, org *model.Organization, prop *model.Property) string {
	return RenderTemplate(template, PersonalizationData(lead, org, prop))
}
