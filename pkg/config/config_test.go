package config

import (
	"testing"
)

func TestParseConnectionString(t *testing.T) {
	parts := parseConnectionString("DefaultEndpointsProtocol=https;AccountName=crossdc;AccountKey=a2V5;EndpointSuffix=core.windows.net;")

	if parts[connectionStringAccountName] != "crossdc" {
		t.Fatalf("expected account name crossdc got %v", parts[connectionStringAccountName])
	}
	if parts[connectionStringAccountKey] != "a2V5" {
		t.Fatalf("expected account key a2V5 got %v", parts[connectionStringAccountKey])
	}
	if parts[connectionStringEndpointSuffix] != "core.windows.net" {
		t.Fatalf("expected endpoint suffix core.windows.net got %v", parts[connectionStringEndpointSuffix])
	}
}

func TestValidateAzureConnectionString(t *testing.T) {
	c := NewConfig()
	c.DataCenter = "A"
	c.LocalIP = "10.0.0.1"
	c.AzureTable.TableName = "leases"
	c.AzureTable.StorageKey.ConnectionString = "DefaultEndpointsProtocol=https;AccountName=crossdc;AccountKey=a2V5;TableEndpoint=https://crossdc.table.cosmos.azure.com:443/;"

	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected validation error:%v", err)
	}
	if c.AzureTable.AccountName != "crossdc" {
		t.Fatalf("expected account name parsed out of connection string got %v", c.AzureTable.AccountName)
	}
	if !c.AzureTable.StorageKey.IsCosmos {
		t.Fatalf("expected cosmos to be detected from table endpoint")
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:   "memory store",
			mutate: func(c *Config) { c.StoreType = StoreTypeMemory },
		},
		{
			name:    "missing dc",
			mutate:  func(c *Config) { c.StoreType = StoreTypeMemory; c.DataCenter = "" },
			wantErr: true,
		},
		{
			name:    "unknown store",
			mutate:  func(c *Config) { c.StoreType = "zookeeper" },
			wantErr: true,
		},
		{
			name:    "azure without account",
			mutate:  func(c *Config) { c.StoreType = StoreTypeAzureTable },
			wantErr: true,
		},
		{
			name:    "etcd without endpoints",
			mutate:  func(c *Config) { c.StoreType = StoreTypeEtcd; c.Etcd.Endpoints = " , " },
			wantErr: true,
		},
		{
			name:   "etcd with endpoints",
			mutate: func(c *Config) { c.StoreType = StoreTypeEtcd; c.Etcd.Endpoints = "127.0.0.1:2379" },
		},
		{
			name:    "nats without bucket",
			mutate:  func(c *Config) { c.StoreType = StoreTypeNATS; c.NATS.URL = "nats://127.0.0.1:4222" },
			wantErr: true,
		},
		{
			name:    "bolt without path",
			mutate:  func(c *Config) { c.StoreType = StoreTypeBolt },
			wantErr: true,
		},
		{
			name:    "sql without dsn",
			mutate:  func(c *Config) { c.StoreType = StoreTypeSQL },
			wantErr: true,
		},
		{
			name:    "kube without namespace",
			mutate:  func(c *Config) { c.StoreType = StoreTypeKube },
			wantErr: true,
		},
		{
			name:    "negative retry",
			mutate:  func(c *Config) { c.StoreType = StoreTypeMemory; c.Election.MaxElectRetry = -1 },
			wantErr: true,
		},
		{
			name: "tls without cert",
			mutate: func(c *Config) {
				c.StoreType = StoreTypeMemory
				c.UseTlS = true
			},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewConfig()
			c.DataCenter = "A"
			c.LocalIP = "10.0.0.1"
			tc.mutate(c)

			err := c.Validate()
			if tc.wantErr && err == nil {
				t.Fatalf("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected validation error:%v", err)
			}
		})
	}
}

func TestEtcdEndpoints(t *testing.T) {
	c := NewConfig()
	c.Etcd.Endpoints = "a:2379, b:2379,,c:2379 "
	endpoints := c.EtcdEndpoints()
	if len(endpoints) != 3 {
		t.Fatalf("expected 3 endpoints got %v", endpoints)
	}
	if endpoints[1] != "b:2379" {
		t.Fatalf("expected trimmed endpoint b:2379 got %q", endpoints[1])
	}
}

func TestValidateDefaultsMinCycleInterval(t *testing.T) {
	c := NewConfig()
	c.DataCenter = "A"
	c.LocalIP = "10.0.0.1"
	c.StoreType = StoreTypeMemory
	c.Election.MinCycleInterval = 0

	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected validation error:%v", err)
	}
	if c.Election.MinCycleInterval != DefaultMinCycleInterval {
		t.Fatalf("expected min cycle interval to default to %v got %v", DefaultMinCycleInterval, c.Election.MinCycleInterval)
	}
}
