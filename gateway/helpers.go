package gateway

import (
	"github.com/flosch/pongo2/v6"
	"github.com/pharmacare/go-session"
)

// TemplateUserKey is the view key holding the current user.
var TemplateUserKey = "current_user"

// TemplateHelpers registers the session filters with the view engine.
//
// In templates:
//
//	{% if current_user|is_authenticated %}
//	{% if current_user|is_pharmacy_staff %}
//	{{ current_user|full_name }}
func TemplateHelpers() map[string]pongo2.FilterFunction {
	return map[string]pongo2.FilterFunction{
		"is_authenticated":  filterIsAuthenticated,
		"is_pharmacy_staff": filterIsPharmacyStaff,
		"full_name":         filterFullName,
	}
}

func registerTemplateHelpers() {
	for name, fn := range TemplateHelpers() {
		if pongo2.FilterExists(name) {
			continue
		}
		_ = pongo2.RegisterFilter(name, fn)
	}
}

func userOf(in *pongo2.Value) session.CurrentUser {
	user, _ := in.Interface().(session.CurrentUser)
	return user
}

func filterIsAuthenticated(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	return pongo2.AsValue(session.KindOf(userOf(in)) != ""), nil
}

func filterIsPharmacyStaff(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	return pongo2.AsValue(session.IsPharmacyStaff(userOf(in))), nil
}

func filterFullName(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	user := userOf(in)
	if session.KindOf(user) == "" {
		return pongo2.AsValue(""), nil
	}
	if name := user.FullName(); name != "" {
		return pongo2.AsValue(name), nil
	}
	return pongo2.AsValue(user.GetEmail()), nil
}
