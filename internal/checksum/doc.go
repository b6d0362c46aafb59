// Package checksum computes SHA-256 digests of artifacts and manages the
// ".sha256" sibling files published next to them.
//
// Sibling files use the sha256sum layout "<hex>  <basename>\n" so they can be
// verified with standard tools.
package checksum
