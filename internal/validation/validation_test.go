package validation

import (
	"strings"
	"testing"

	"memberdir/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestValidateEmail(t *testing.T) {
	t.Parallel()
	// 254 chars total: 64 local + @ + 185 domain label + ".com" (4)
	emailAt254 := strings.Repeat("a", 64) + "@" + strings.Repeat("b", 185) + ".com"
	tests := []struct {
		name    string
		email   string
		wantErr bool
	}{
		{"Valid", "test@example.com", false},
		{"Subdomain", "ann.lee+dir@mail.example.org", false},
		{"Exactly 254 Characters", emailAt254, false},
		{"Too Long", "a" + emailAt254, true},
		{"Invalid Format", "not-an-email", true},
		{"Missing Domain", "user@", true},
		{"Multiple At Symbols", "user@@example.com", true},
		{"Space In Local Part", "user @example.com", true},
		{"Trailing Dot In Domain", "user@example.com.", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "ann@example.com", NormalizeEmail("  Ann@Example.COM "))
}

func TestValidateOTPCode(t *testing.T) {
	t.Parallel()
	assert.NoError(t, ValidateOTPCode("004213"))
	for _, bad := range []string{"", "12345", "1234567", "12a456", " 123456"} {
		assert.Error(t, ValidateOTPCode(bad), bad)
	}
}

func TestValidateDisplayName(t *testing.T) {
	t.Parallel()
	assert.NoError(t, ValidateDisplayName("Ann"))
	assert.NoError(t, ValidateDisplayName(strings.Repeat("é", 100)))
	assert.Error(t, ValidateDisplayName("   "))
	assert.Error(t, ValidateDisplayName(strings.Repeat("x", 101)))
}

func TestValidateCategories(t *testing.T) {
	t.Parallel()
	assert.NoError(t, ValidateCategories("open_to", nil))
	assert.NoError(t, ValidateCategories("open_to", []string{"consulting", "internships"}))

	err := ValidateCategories("can_provide", []string{"consulting", "snacks"})
	assert.ErrorContains(t, err, `can_provide contains unknown category "snacks"`)

	assert.Error(t, ValidateCategories("open_to", []string{"consulting", "consulting"}))
}

func TestValidateSkills(t *testing.T) {
	t.Parallel()
	assert.NoError(t, ValidateSkills([]string{"Go", "Anything not in the taxonomy"}))
	assert.Error(t, ValidateSkills([]string{strings.Repeat("s", 61)}))
	assert.Error(t, ValidateSkills(make([]string, 51)))
}

func TestValidateURL(t *testing.T) {
	t.Parallel()
	assert.NoError(t, ValidateURL("linkedin_url", ""))
	assert.NoError(t, ValidateURL("linkedin_url", "https://linkedin.com/in/ann"))
	assert.Error(t, ValidateURL("website_url", "ftp://example.com"))
	assert.Error(t, ValidateURL("website_url", "example.com"))
	assert.Error(t, ValidateURL("website_url", "https://"+strings.Repeat("a", 250)+".com"))
}

func TestValidateContact(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		method  models.ContactMethod
		slack   string
		email   string
		wantErr bool
	}{
		{"slack handle", models.ContactSlack, "@ann", "", false},
		{"slack empty", models.ContactSlack, "", "", false},
		{"slack with spaces", models.ContactSlack, "ann lee", "", true},
		{"email ok", models.ContactEmail, "", "ann@example.com", false},
		{"email bad", models.ContactEmail, "", "ann", true},
		{"unknown method", models.ContactMethod("fax"), "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateContact(tt.method, tt.slack, tt.email)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateTextLengths(t *testing.T) {
	t.Parallel()
	assert.NoError(t, ValidateTextLengths("Ex-Google SWE", "", "Berlin"))
	assert.Error(t, ValidateTextLengths(strings.Repeat("b", 281), "", ""))
	assert.Error(t, ValidateTextLengths("", strings.Repeat("b", 4001), ""))
	assert.Error(t, ValidateTextLengths("", "", strings.Repeat("l", 101)))
}

func TestSplitSkills(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"React", "TypeScript", "Node.js"}, SplitSkills(" React, TypeScript,,Node.js , "))
	assert.Equal(t, []string{}, SplitSkills(""))
}
