// Package credentials holds the credential-type catalog, alias resolution, seed
// entries and the encrypted field blob stored on each credential row.
package credentials

import (
	"sort"

	"flowseed/internal/config"
)

// Definition describes one canonical credential type.
type Definition struct {
	Name         string
	Label        string
	Aliases      []string
	DefaultName  string
	Fields       map[string]string
	PrimaryField string
}

type fieldSource struct {
	field    string
	value    func(config.CredentialKeys) string
	required bool
}

type catalogEntry struct {
	name        string
	label       string
	aliases     []string
	defaultName string
	fields      []fieldSource
}

var catalog = []catalogEntry{
	{
		name:        "openAIApi",
		label:       "OpenAI API",
		aliases:     []string{"openai", "openai-api", "openai_api"},
		defaultName: "Test OpenAI Key",
		fields: []fieldSource{
			{field: "openAIApiKey", value: func(k config.CredentialKeys) string { return k.OpenAIAPIKey }, required: true},
		},
	},
	{
		name:        "exaSearchApi",
		label:       "Exa Search API",
		aliases:     []string{"exa", "exa-search", "exa_search"},
		defaultName: "Test Exa Key",
		fields: []fieldSource{
			{field: "exaSearchApiKey", value: func(k config.CredentialKeys) string { return k.ExaAPIKey }, required: true},
		},
	},
	{
		name:        "slackApi",
		label:       "Slack API",
		aliases:     []string{"slack", "slack-bot"},
		defaultName: "Test Slack Bot",
		fields: []fieldSource{
			{field: "botToken", value: func(k config.CredentialKeys) string { return k.SlackBotToken }, required: true},
			{field: "signingSecret", value: func(k config.CredentialKeys) string { return k.SlackSigningSecret }},
		},
	},
	{
		name:        "githubApi",
		label:       "GitHub API",
		aliases:     []string{"github", "gh"},
		defaultName: "Test GitHub Token",
		fields: []fieldSource{
			{field: "accessToken", value: func(k config.CredentialKeys) string { return k.GitHubToken }, required: true},
		},
	},
	{
		name:        "jiraApi",
		label:       "Jira API",
		aliases:     []string{"jira", "atlassian"},
		defaultName: "Test Jira Account",
		fields: []fieldSource{
			{field: "accessToken", value: func(k config.CredentialKeys) string { return k.JiraAccessToken }, required: true},
			{field: "username", value: func(k config.CredentialKeys) string { return k.JiraUsername }, required: true},
			{field: "host", value: func(k config.CredentialKeys) string { return k.JiraHost }},
		},
	},
}

// BuildDefinitions materializes the catalog against configured secrets. Types whose
// required fields have no value are left out, so they are unknown to the resolver.
func BuildDefinitions(keys config.CredentialKeys) []Definition {
	defs := make([]Definition, 0, len(catalog))
	for _, entry := range catalog {
		def := Definition{
			Name:         entry.name,
			Label:        entry.label,
			Aliases:      append([]string(nil), entry.aliases...),
			DefaultName:  entry.defaultName,
			Fields:       make(map[string]string, len(entry.fields)),
			PrimaryField: entry.fields[0].field,
		}
		complete := true
		for _, source := range entry.fields {
			value := source.value(keys)
			if value == "" && source.required {
				complete = false
				break
			}
			def.Fields[source.field] = value
		}
		if complete {
			defs = append(defs, def)
		}
	}
	return defs
}

// FieldNames returns the definition's field names in a stable order.
func (d Definition) FieldNames() []string {
	names := make([]string, 0, len(d.Fields))
	for name := range d.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
