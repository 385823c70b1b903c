// Package modelhub resolves remote model references: given a
// "hf://owner/repo" reference it fetches metadata.json, validates the
// letsearch model contract, and downloads the requested variant (plus any
// required_files) into a local cache directory.
package modelhub
