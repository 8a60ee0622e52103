// Package configflow creates entries from user input.
//
// The user picks a data source. Local entries are created after a device
// answers on the LAN. Cloud entries go through an external OAuth step: the
// flow hands out an authorize URL and finishes when the provider redirects
// back with a code. At most one local and one cloud entry may exist.
package configflow
