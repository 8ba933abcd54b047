// Package httpapi serves the docsign operations over HTTP and provides a
// client for a remote verification endpoint.
//
// # Routes
//
//	GET    /healthz
//	POST   /generate_keys          {"key_size": 2048}
//	GET    /download_key/{type}    type is "public" or "private"
//	POST   /sign_document          multipart: document, private_key
//	GET    /download_signature
//	POST   /verify_signature       multipart: document, signature, public_key
//	GET    /verification_result
//	DELETE /session
//
// Key pairs, signatures and the last verification result are kept in a
// per-visitor session identified by the docsign_session cookie. Sessions
// live only in memory and expire after an idle period.
//
// POST /verify_signature always answers with a JSON object of the form
//
//	{"error": false, "message": "signature is valid", "is_valid": true}
//
// A signature that does not match is a 200 response with is_valid false.
// Structurally invalid input is a 4xx response with error set.
//
// # Server
//
//	srv, err := httpapi.New(cfg, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Run accepts HTTP/1.1 and cleartext HTTP/2 and shuts down gracefully when
// ctx is done.
//
// # Middlewares
//
// Every request passes, outermost first, through RecoveryMiddleware,
// RequestIDMiddleware, AccessLogMiddleware, SecurityHeadersMiddleware and
// RequestSizeLimitMiddleware. The access log middleware stores a request
// scoped zerolog logger in the context; handlers retrieve it with
// zerolog.Ctx.
//
// # Client
//
//	c, err := httpapi.NewClient("https://sign.example.com", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := c.Verify(ctx, httpapi.VerifyUpload{
//	    Document:     doc,
//	    DocumentName: "contract.pdf",
//	    Signature:    sigText,
//	    PublicKey:    publicPEM,
//	})
//
// Structural errors reported by the server are returned as *RemoteError.
package httpapi
