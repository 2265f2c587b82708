// Package sqlite provides an on-disk credential store for single-host
// deployments such as the authctl terminal client.
package sqlite
