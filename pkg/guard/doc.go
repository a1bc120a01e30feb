// Package guard encrypts record content and computes content hashes.
//
// Ciphertexts are self-describing envelopes: they name the cipher suite and the
// key ID that sealed them, so records sealed under an older key keep decrypting
// after a new key becomes active. Key material is loaded once from a
// SecretProvider and never generated per record.
package guard
