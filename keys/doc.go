// Package keys generates RSA key pairs and converts them to and from PEM
// text.
//
// Private keys are exported as unencrypted PKCS#8 ("PRIVATE KEY") blocks and
// public keys as SubjectPublicKeyInfo ("PUBLIC KEY") blocks, so keys written
// by this package can be read by OpenSSL and other compliant tooling. The
// legacy PKCS#1 block types ("RSA PRIVATE KEY", "RSA PUBLIC KEY") are
// accepted on input.
//
// Only modulus sizes of 1024, 2048 and 4096 bits are supported:
//
//	pair, err := keys.Generate(2048)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	publicPEM := keys.EncodePublic(pair)
//	privatePEM := keys.EncodePrivate(pair)
//
// Generation at 4096 bits can take seconds. GenerateContext runs it in the
// background and returns early when the context is done; the abandoned key
// is discarded once it completes.
package keys
