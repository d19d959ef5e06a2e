package core

// queries.go – the read-only query surface (spec.md §4.B queries):
// point lookups, domain-scoped and account-scoped listings with
// pagination and metadata-key sorting. Queries run directly against a
// WorldStateView snapshot; no StateTransaction is opened since queries
// never mutate.

// QueryKind selects which field(s) of Query and QueryResult are used.
type QueryKind int

const (
	QueryFindDomain QueryKind = iota
	QueryFindAccount
	QueryFindAssetDefinition
	QueryFindAsset
	QueryFindRole
	QueryFindTrigger
	QueryFindParameter
	QueryFindAllDomains
	QueryFindAllAccounts
	QueryFindAllRoles
	QueryFindAllParameters
	QueryFindAllPeers
	QueryFindAssetDefinitionsByDomain
	QueryFindAssetsByAccount
)

// Query is a tagged-union request; exactly the fields relevant to Kind
// are read.
type Query struct {
	Kind            QueryKind
	Domain          DomainId
	Account         AccountId
	AssetDefinition AssetDefinitionId
	Asset           AssetId
	Role            RoleId
	Trigger         TriggerId
	Parameter       ParameterId
	Page            PageQuery
}

// QueryResult is the tagged-union response; exactly the fields
// corresponding to the originating Query's Kind are populated.
type QueryResult struct {
	Domain           *Domain           `json:",omitempty"`
	Account          *Account          `json:",omitempty"`
	AssetDefinition  *AssetDefinition  `json:",omitempty"`
	Asset            *Asset            `json:",omitempty"`
	Role             *Role             `json:",omitempty"`
	Trigger          *Trigger          `json:",omitempty"`
	Parameter        *Parameter        `json:",omitempty"`
	Domains          []*Domain         `json:",omitempty"`
	Accounts         []*Account        `json:",omitempty"`
	Roles            []*Role           `json:",omitempty"`
	Parameters       []*Parameter      `json:",omitempty"`
	Peers            []*Peer           `json:",omitempty"`
	AssetDefinitions []*AssetDefinition `json:",omitempty"`
	Assets           []*Asset          `json:",omitempty"`
}

func assetMetadata(a *Asset) Metadata {
	if a.Value.Type == AssetTypeStore {
		return a.Value.Store
	}
	return nil
}

// RunQuery executes q against wsv. authority is accepted for callers that
// need to layer a permission check (the executor's validate_query entry
// point) in front of this; RunQuery itself performs no authorization.
func RunQuery(wsv *WorldStateView, authority AccountId, q Query) (*QueryResult, error) {
	switch q.Kind {
	case QueryFindDomain:
		d, ok := wsv.FindDomain(q.Domain)
		if !ok {
			return nil, Newf(KindFind, "domain %s not found", q.Domain)
		}
		return &QueryResult{Domain: d}, nil
	case QueryFindAccount:
		a, ok := wsv.FindAccount(q.Account)
		if !ok {
			return nil, Newf(KindFind, "account %s not found", q.Account)
		}
		return &QueryResult{Account: a}, nil
	case QueryFindAssetDefinition:
		d, ok := wsv.FindAssetDefinition(q.AssetDefinition)
		if !ok {
			return nil, Newf(KindFind, "asset definition %s not found", q.AssetDefinition)
		}
		return &QueryResult{AssetDefinition: d}, nil
	case QueryFindAsset:
		a, ok := wsv.FindAsset(q.Asset)
		if !ok {
			return nil, Newf(KindFind, "asset %s not found", q.Asset)
		}
		return &QueryResult{Asset: a}, nil
	case QueryFindRole:
		r, ok := wsv.FindRole(q.Role)
		if !ok {
			return nil, Newf(KindFind, "role %s not found", q.Role)
		}
		return &QueryResult{Role: r}, nil
	case QueryFindTrigger:
		t, ok := wsv.FindTrigger(q.Trigger)
		if !ok {
			return nil, Newf(KindFind, "trigger %s not found", q.Trigger)
		}
		return &QueryResult{Trigger: t}, nil
	case QueryFindParameter:
		p, ok := wsv.FindParameter(q.Parameter)
		if !ok {
			return nil, Newf(KindFind, "parameter %s not found", q.Parameter)
		}
		return &QueryResult{Parameter: p}, nil
	case QueryFindAllDomains:
		items := SortByMetadataKey(wsv.AllDomains(), q.Page.SortKey, func(d *Domain) Metadata { return d.Metadata })
		return &QueryResult{Domains: Paginate(items, q.Page)}, nil
	case QueryFindAllAccounts:
		items := SortByMetadataKey(wsv.AllAccounts(), q.Page.SortKey, func(a *Account) Metadata { return a.Metadata })
		return &QueryResult{Accounts: Paginate(items, q.Page)}, nil
	case QueryFindAllRoles:
		return &QueryResult{Roles: Paginate(wsv.AllRoles(), q.Page)}, nil
	case QueryFindAllParameters:
		return &QueryResult{Parameters: Paginate(wsv.AllParameters(), q.Page)}, nil
	case QueryFindAllPeers:
		return &QueryResult{Peers: Paginate(wsv.Peers(), q.Page)}, nil
	case QueryFindAssetDefinitionsByDomain:
		items := SortByMetadataKey(wsv.AssetDefinitionsByDomain(q.Domain), q.Page.SortKey, func(d *AssetDefinition) Metadata { return d.Metadata })
		return &QueryResult{AssetDefinitions: Paginate(items, q.Page)}, nil
	case QueryFindAssetsByAccount:
		items := SortByMetadataKey(wsv.AssetsByAccount(q.Account), q.Page.SortKey, assetMetadata)
		return &QueryResult{Assets: Paginate(items, q.Page)}, nil
	default:
		return nil, Newf(KindType, "unknown query kind %d", q.Kind)
	}
}
