// Package client provides a pooled Go client for the lock server.
//
// The client speaks the line protocol over a bounded pool of TCP
// connections. Because the server scopes lock ownership to the session, and
// a session is a connection, a granted lock pins its connection out of the
// pool until Release; the pool size is therefore the number of locks the
// client can hold plus the requests it can run concurrently.
//
// Transport failures on acquire and health checks are retried on fresh
// connections up to the configured retry count. Releases are never retried:
// a replacement connection would be a different session without ownership,
// and the server frees the lock anyway when the broken connection closes.
//
// The usual entry point is WithLock, which scopes a critical section:
//
//	c := client.NewClient(common.ClientConfig{
//	    Host:     "127.0.0.1",
//	    Port:     9001,
//	    PoolSize: 4,
//	})
//	defer c.Close()
//
//	err := c.WithLock("invoice-42", 5*time.Second, func() error {
//	    // only one client at a time runs this
//	    return nil
//	})
package client
