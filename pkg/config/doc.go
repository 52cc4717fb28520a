/*
Package config loads the runtime's YAML configuration.

A config file names the data directory, logging level and format, the
flow-control mode and lattice, the retry budget, and the metrics
listen address:

	data_dir: /var/lib/loom
	log:
	  level: info
	  json: true
	flow:
	  mode: enforcing
	  lattice:
	    labels:
	      unclassified: [confidential]
	      confidential: [secret]
	      secret: [topsecret]
	      topsecret: []
	metrics_addr: ":9464"

CLI flags override file values; everything has a default, so the file
is optional.
*/
package config
