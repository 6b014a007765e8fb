// Package common holds configuration and logging shared by the server and
// client packages.
//
// ServerConfig and ClientConfig carry all tunables; both render themselves
// as a readable block via String for startup logging. Loggers are named per
// package and obtained through GetLogger, with InitLoggers applying the
// configured level to all of them at startup.
package common
