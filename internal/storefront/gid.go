package storefront

import "strings"

const productGIDPrefix = "gid://shopify/Product/"

// NumericID returns the trailing path segment of a global id such as
// "gid://shopify/Product/123", ignoring any query suffix. Ids without a
// slash are returned unchanged.
func NumericID(gid string) string {
	if i := strings.IndexByte(gid, '?'); i >= 0 {
		gid = gid[:i]
	}
	if i := strings.LastIndexByte(gid, '/'); i >= 0 {
		return gid[i+1:]
	}
	return gid
}

// FormatProductID renders a product id the way an ad catalog expects it:
// the full global id when fullGID is set, otherwise the numeric id. A bare
// numeric id is promoted to a product global id in full mode.
func FormatProductID(id string, fullGID bool) string {
	if !fullGID {
		return NumericID(id)
	}
	if id == "" || strings.HasPrefix(id, "gid://") {
		return id
	}
	return productGIDPrefix + id
}
