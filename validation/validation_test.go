package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBasicValidators(t *testing.T) {
	v := Violations{}
	Required("email", "  ", v)
	MinLength("password", "12345", 6, v)
	OneOf("role", "donor", []string{"blood_bank", "official"}, v)

	assert.Equal(t, "required", v["email"])
	assert.Equal(t, "too_short", v["password"])
	assert.Equal(t, "invalid_choice", v["role"])

	ok := Violations{}
	Required("email", "a@b.c", ok)
	MinLength("password", "123456", 6, ok)
	OneOf("role", "official", []string{"blood_bank", "official"}, ok)
	assert.True(t, ok.Empty())
}

func TestPhone(t *testing.T) {
	v := Violations{}
	Phone("phone", "", v)
	Phone("phone", "0112691111", v)
	assert.True(t, v.Empty(), "empty and national LK numbers are accepted")

	Phone("phone", "12", v)
	assert.True(t, v.Has("phone"))
	assert.True(t, IsPhone("+1 650-253-0000", DefaultRegion))
}

type shortageInput struct {
	BloodType string `form:"blood_type" validate:"required,oneof=O+ O- A+ A- B+ B- AB+ AB-"`
	Status    string `json:"status" validate:"omitempty,oneof=critical low normal"`
	Phone     string `validate:"phone"`
}

func TestStruct(t *testing.T) {
	assert.True(t, Struct(shortageInput{BloodType: "AB-", Status: "low"}).Empty())

	v := Struct(shortageInput{BloodType: "C+", Status: "urgent", Phone: "abc"})
	assert.Equal(t, "oneof", v["blood_type"])
	assert.Equal(t, "oneof", v["status"])
	assert.Equal(t, "phone", v["Phone"])

	v = Struct(shortageInput{})
	assert.Equal(t, "required", v["blood_type"])
	assert.False(t, v.Has("status"))
}
