// Package embedder defines the text-to-vector capability consumed by
// modelregistry. It ships two backends: TFIDF, a deterministic embedder
// usable without any external runtime, and ONNX, a stub documenting the
// integration point for the model formats modelhub resolves but this
// build cannot execute. See Embedder for the contract both implement.
package embedder
