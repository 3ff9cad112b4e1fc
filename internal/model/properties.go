package model

import (
	"strconv"

	"github.com/google/uuid"
)

// Line item property keys echoed onto every cart line this service inserts.
// The property bag is the only linkage between a main line and its add-ons;
// grouping is reconstructed from these keys on every cart read.
const (
	PropGroupID     = "_bundle_group_id"
	PropRole        = "_bundle_role"
	PropBundleID    = "_bundle_id"
	PropMainProduct = "_bundle_main_product_id"
	PropCascade     = "_bundle_cascade"
)

// Role tags a cart line's position within a bundle group.
type Role string

const (
	RoleMain  Role = "main"
	RoleAddon Role = "addon"
)

// NewGroupID generates a fresh bundle group identifier. One id is generated
// per cart-add action and shared by the main line and all add-on lines added
// in that action.
func NewGroupID() string {
	return "bg_" + uuid.NewString()
}

// MainProperties builds the property bag for a main line.
func MainProperties(groupID, bundleID string) map[string]string {
	return map[string]string{
		PropGroupID:  groupID,
		PropRole:     string(RoleMain),
		PropBundleID: bundleID,
	}
}

// AddonProperties builds the property bag for an add-on line. The cascade
// flag is echoed per line so later config changes cannot reinterpret lines
// already in the cart.
func AddonProperties(groupID, bundleID string, mainProductID int64, cascade bool) map[string]string {
	return map[string]string{
		PropGroupID:     groupID,
		PropRole:        string(RoleAddon),
		PropBundleID:    bundleID,
		PropMainProduct: strconv.FormatInt(mainProductID, 10),
		PropCascade:     strconv.FormatBool(cascade),
	}
}

// GroupIDOf extracts the bundle group id from a property bag, or "".
func GroupIDOf(props map[string]string) string {
	return props[PropGroupID]
}

// RoleOf extracts the bundle role from a property bag, or "".
func RoleOf(props map[string]string) Role {
	return Role(props[PropRole])
}

// CascadeOf reports whether a property bag carries a true cascade flag.
// Missing or malformed values read as false: lines added before the cascade
// setting existed are left alone.
func CascadeOf(props map[string]string) bool {
	v, err := strconv.ParseBool(props[PropCascade])
	if err != nil {
		return false
	}
	return v
}
