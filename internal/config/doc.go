// Package config provides configuration types and loading for forage-ws.
//
// # Configuration File
//
// HostConfig is loaded from /etc/forage-ws/config.toml. Every key is optional;
// missing keys keep the values from DefaultHostConfig:
//
//	base_domain  = "dev.example.com"
//	database_url = "sqlite:/var/lib/forage-ws/forage-ws.db"
//
//	[ports]
//	from = 8001
//	to   = 8100
//
//	[service]
//	exec_start    = "/usr/bin/code-server --bind-addr {{.BindAddr}} --auth password {{.WorkingDir}}"
//	start_timeout = "10s"
//
//	[routes]
//	path = "/etc/traefik/dynamic/forage-ws.yaml"
//
//	[quota.plans]
//	free = "5G"
//	pro  = "20G"
//
// Unknown keys are rejected so typos surface at startup.
//
// # Names
//
// ValidateWorkspaceName and ValidateOwner restrict names to DNS-label
// characters, since both end up in the public hostname.
package config
