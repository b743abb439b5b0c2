// Package ftps implements the FTP/FTPS protocol client used by the engine
// and session packages.
//
// # Overview
//
// The client speaks plain FTP, explicit TLS (AUTH TLS on port 21) and
// implicit TLS (port 990). Data connections are always passive (EPSV with a
// PASV fallback) and, when the control channel is protected, run TLS with
// session reuse so servers such as vsftpd and ProFTPD accept them.
//
// # Basic Usage
//
//	client, err := ftps.Dial("ftp.example.com:21",
//	    ftps.WithExplicitTLS(&tls.Config{ServerName: "ftp.example.com"}),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Quit()
//
//	if err := client.Login("username", "password"); err != nil {
//	    log.Fatal(err)
//	}
//
// # Certificate Decisions
//
// By default the server certificate is verified by crypto/tls. WithVerifier
// hands the decision to a Verifier instead, typically a *trust.Gate that asks
// a person about self-signed or mismatched certificates:
//
//	gate := trust.NewGate(trust.WithHandler(trust.AutoAccept(prompt)))
//	client, err := ftps.DialContext(ctx, "ftp.example.com:21",
//	    ftps.WithExplicitTLS(nil),
//	    ftps.WithVerifier(gate),
//	)
//
// The decision covers the control connection. Every data connection of the
// same client must present the very same leaf certificate or it is refused
// with ErrCertificateChanged.
//
// # Listings
//
// List runs LIST and parses the reply with a listing.Parser, which understands
// the common UNIX and DOS formats and falls back to a legacy encoding
// (Shift-JIS by default) when the bytes are not UTF-8. ListRaw returns the
// undecoded bytes.
//
// # Progress Tracking
//
// Wrap the reader or writer of a transfer. Returning false from the callback
// stops the transfer with ErrTransferAborted:
//
//	pr := &ftps.ProgressReader{
//	    Reader: file,
//	    Callback: func(n int64) bool {
//	        fmt.Printf("Uploaded: %d bytes\n", n)
//	        return !cancelled()
//	    },
//	}
//	err := client.Store("remote.txt", pr)
//
// # Error Handling
//
// Server rejections are returned as *ProtocolError carrying the command and
// reply code:
//
//	var pe *ftps.ProtocolError
//	if errors.As(err, &pe) && pe.Code == 550 {
//	    fmt.Println("no such file:", pe.Response)
//	}
package ftps
