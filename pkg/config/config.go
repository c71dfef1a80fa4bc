package config

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Azure/azure-sdk-for-go/storage"
)

const (
	StoreTypeAzureTable = "azure-table"
	StoreTypeEtcd       = "etcd"
	StoreTypeKube       = "kube"
	StoreTypeNATS       = "nats"
	StoreTypeBolt       = "bolt"
	StoreTypeSQL        = "sql"
	StoreTypeMemory     = "memory"

	connectionStringAccountName    = "accountname"
	connectionStringAccountKey     = "accountkey"
	connectionStringEndpointSuffix = "endpointsuffix"
	connectionStringTableEndpoint  = "tableendpoint"

	DefaultMinCycleInterval = time.Second
)

var StoreTypes = []string{
	StoreTypeAzureTable,
	StoreTypeEtcd,
	StoreTypeKube,
	StoreTypeNATS,
	StoreTypeBolt,
	StoreTypeSQL,
	StoreTypeMemory,
}

type AuthStorageKey struct {
	AccountPrimaryKey string
	ConnectionString  string
	EndpointSuffix    string
	IsCosmos          bool
}

type TLSConfig struct {
	CertFilePath  string
	KeyFilePath   string
	TrustedCAFile string
}

type AzureTableConfig struct {
	AccountName string
	TableName   string
	StorageKey  AuthStorageKey
}

type EtcdConfig struct {
	Endpoints   string // comma separated
	Prefix      string
	DialTimeout time.Duration
}

type KubeConfig struct {
	KubeConfigPath string // empty means in-cluster
	Namespace      string
}

type NATSConfig struct {
	URL    string
	Bucket string
}

type BoltConfig struct {
	Path string
}

type SQLConfig struct {
	DSN   string
	Table string
}

// ElectionConfig carries timing overrides. zero values mean defaults.
type ElectionConfig struct {
	MaxElectionDelay time.Duration
	ElectionInterval time.Duration
	MaxElectRetry    int
	MinCycleInterval time.Duration
}

type Runtime struct {
	Done          chan struct{}
	Stop          chan os.Signal
	Context       context.Context
	StorageClient storage.Client
	TableClient   storage.TableServiceClient
	StorageTable  *storage.Table
}

type Config struct {
	DataCenter string
	LocalIP    string

	ListenAddress  string
	MetricsAddress string
	UseTlS         bool
	TLSConfig      TLSConfig

	TopologyFile          string
	TopologyReloadSeconds int

	StoreType  string
	AzureTable AzureTableConfig
	Etcd       EtcdConfig
	Kube       KubeConfig
	NATS       NATSConfig
	Bolt       BoltConfig
	SQL        SQLConfig

	Election ElectionConfig

	Runtime Runtime
}

func NewConfig() *Config {
	return &Config{
		StoreType: StoreTypeAzureTable,
		Election: ElectionConfig{
			MinCycleInterval: DefaultMinCycleInterval,
		},
	}
}

//Stole from here.
//https://github.com/Azure/azure-sdk-for-go/blob/1b5e008a20b6382007c576c991be7c4c95f496eb/storage/client.go#L242
func parseConnectionString(cstr string) map[string]string {
	parts := map[string]string{}
	for _, pair := range strings.Split(cstr, ";") {
		if pair == "" {
			continue
		}

		equalDex := strings.IndexByte(pair, '=')
		if equalDex <= 0 {
			continue
		}

		value := strings.TrimSpace(pair[equalDex+1:])
		key := strings.TrimSpace(strings.ToLower(pair[:equalDex]))
		parts[key] = value
	}
	return parts
}

func (c *Config) Validate() error {
	if len(c.DataCenter) == 0 {
		return fmt.Errorf("data center name is required")
	}

	if len(c.LocalIP) == 0 {
		ip, err := discoverLocalIP()
		if err != nil {
			return fmt.Errorf("local ip was not provided and could not be discovered: %w", err)
		}
		c.LocalIP = ip
	}

	if c.Election.MaxElectRetry < 0 {
		return fmt.Errorf("max elect retry must not be negative")
	}

	if c.Election.MinCycleInterval <= 0 {
		c.Election.MinCycleInterval = DefaultMinCycleInterval
	}

	if err := c.validateStore(); err != nil {
		return err
	}

	// listening endpoint config
	if c.UseTlS {
		if len(c.TLSConfig.CertFilePath) == 0 {
			return fmt.Errorf("cert file path is required when TLS is set to true")
		}

		if len(c.TLSConfig.KeyFilePath) == 0 {
			return fmt.Errorf("key file path is required when TLS is set to true")
		}

		if len(c.TLSConfig.TrustedCAFile) == 0 {
			return fmt.Errorf("trust client CA file is required when TLS is set to true")
		}
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.StoreType {
	case StoreTypeAzureTable:
		return c.validateAzureTable()
	case StoreTypeEtcd:
		if len(c.EtcdEndpoints()) == 0 {
			return fmt.Errorf("etcd endpoints are required")
		}
	case StoreTypeKube:
		if len(c.Kube.Namespace) == 0 {
			return fmt.Errorf("kube namespace is required")
		}
	case StoreTypeNATS:
		if len(c.NATS.URL) == 0 {
			return fmt.Errorf("nats url is required")
		}
		if len(c.NATS.Bucket) == 0 {
			return fmt.Errorf("nats kv bucket is required")
		}
	case StoreTypeBolt:
		if len(c.Bolt.Path) == 0 {
			return fmt.Errorf("bolt db path is required")
		}
	case StoreTypeSQL:
		if len(c.SQL.DSN) == 0 {
			return fmt.Errorf("sql dsn is required")
		}
	case StoreTypeMemory:
		// nothing to check. only useful for a single process
	default:
		return fmt.Errorf("unknown store type %q, expected one of %s", c.StoreType, strings.Join(StoreTypes, ","))
	}
	return nil
}

func (c *Config) validateAzureTable() error {
	az := &c.AzureTable
	if len(az.StorageKey.ConnectionString) != 0 {
		//Cosmos db looks like
		//DefaultEndpointsProtocol=https;AccountName=londontest;AccountKey=<hidden>;TableEndpoint=https://londontest.table.cosmos.azure.com:443/;
		//table looks like
		//DefaultEndpointsProtocol=https;AccountName=oldlondon;AccountKey=<hidden>;EndpointSuffix=core.windows.net
		//notice endpointsufix vs tableendpoint
		parts := parseConnectionString(az.StorageKey.ConnectionString)

		az.AccountName = parts[connectionStringAccountName]
		az.StorageKey.AccountPrimaryKey = parts[connectionStringAccountKey]
		az.StorageKey.EndpointSuffix = parts[connectionStringEndpointSuffix]
		if _, ok := parts[connectionStringTableEndpoint]; ok {
			az.StorageKey.IsCosmos = true
			//todo parse this out of TableEndpoint
			az.StorageKey.EndpointSuffix = "cosmos.azure.com"
		}
	}

	if len(az.AccountName) == 0 {
		return fmt.Errorf("storage account name is required")
	}

	// assuming that we are using keys. When we add more
	// change this validation
	if len(az.StorageKey.AccountPrimaryKey) == 0 {
		return fmt.Errorf("storage account key is required")
	}

	if len(az.TableName) == 0 {
		return fmt.Errorf("storage account table name is required")
	}
	return nil
}

func (c *Config) EtcdEndpoints() []string {
	var endpoints []string
	for _, e := range strings.Split(c.Etcd.Endpoints, ",") {
		e = strings.TrimSpace(e)
		if e != "" {
			endpoints = append(endpoints, e)
		}
	}
	return endpoints
}

const cosmosApiVersion = "2019-07-07"

var CosmosDbAdditionalHeaders = map[string]string{
	"MaxDataServiceVersion": "3.0;NetFx",
	"DataServiceVersion":    "3.0",
}

func (c *Config) InitRuntime() error {
	if c.StoreType == StoreTypeAzureTable {
		if err := c.initAzureTable(); err != nil {
			return err
		}
	}

	// wire up runtime stop and context
	c.Runtime.Stop = make(chan os.Signal, 1)
	c.Runtime.Done = make(chan struct{})
	var cancel func()
	c.Runtime.Context, cancel = context.WithCancel(context.Background())

	signal.Notify(c.Runtime.Stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-c.Runtime.Stop
		cancel()
	}()
	return nil
}

func (c *Config) initAzureTable() error {
	var err error
	az := &c.AzureTable
	if az.StorageKey.EndpointSuffix != "" {
		c.Runtime.StorageClient, err = storage.NewClient(az.AccountName, az.StorageKey.AccountPrimaryKey,
			az.StorageKey.EndpointSuffix, cosmosApiVersion, true)
	} else {
		c.Runtime.StorageClient, err = storage.NewBasicClient(az.AccountName, az.StorageKey.AccountPrimaryKey)
	}
	if err != nil {
		return err
	}

	if az.StorageKey.IsCosmos || strings.Contains(az.StorageKey.EndpointSuffix, "cosmos.") {
		//black magic to make cosmos db work with old go client
		c.Runtime.StorageClient.AddAdditionalHeaders(CosmosDbAdditionalHeaders)
	}

	c.Runtime.TableClient = c.Runtime.StorageClient.GetTableService()
	c.Runtime.StorageTable = c.Runtime.TableClient.GetTableReference(az.TableName)
	return nil
}

// first non loopback ipv4 address of this host
func discoverLocalIP() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", err
	}

	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4.String(), nil
		}
	}
	return "", fmt.Errorf("no non-loopback ipv4 address found")
}
