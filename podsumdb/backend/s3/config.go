package s3

import (
	"time"
)

type Config struct {
	Bucket    string `yaml:"bucket"`
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Insecure  bool   `yaml:"insecure"`
	PartSize  uint64 `yaml:"part_size"`
	// SignatureV2 configures the object storage to use V2 signing instead of V4
	SignatureV2        bool          `yaml:"signature_v2"`
	ForcePathStyle     bool          `yaml:"forcepathstyle"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	HedgeRequestsAt    time.Duration `yaml:"hedge_requests_at"`
	HedgeRequestsUpTo  int           `yaml:"hedge_requests_up_to"`
}
