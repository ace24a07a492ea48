/*
Package config loads objectmount's configuration from defaults, an
optional YAML file, and OBJECTMOUNT_* environment variables, in that
order of increasing precedence.

	cfg := config.NewDefault()
	if err := cfg.LoadFromFile("/etc/objectmount/config.yaml"); err != nil {
		log.Fatal(err)
	}
	if err := cfg.LoadFromEnv(); err != nil {
		log.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

A minimal configuration file:

	mount:
	  mount_point: /mnt/objectmount
	  binding: gofuse
	cache:
	  variant: memory
	  max_bytes: 2147483648
	backend:
	  kind: s3
	  s3:
	    bucket: my-bucket
	    region: us-west-2
*/
package config
