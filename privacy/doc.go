// Package privacy evaluates authorization rules on client operations before
// they are compiled into a query graph.
//
// # Core Concepts
//
//   - Policy: query rules for read actions and mutation rules for write actions
//   - Rule: a function returning Allow, Deny, or Skip
//   - Viewer: the authenticated user carried by the context
//
// # Defining Policies
//
// Policies are bound to model names:
//
//	policies := privacy.ModelPolicies{
//	    "Post": {{
//	        Mutation: privacy.MutationPolicy{
//	            privacy.DenyIfNoViewer(),
//	            privacy.HasRole("admin"),
//	            privacy.IsOwner("authorId"),
//	            privacy.AlwaysDenyRule(),
//	        },
//	        Query: privacy.QueryPolicy{
//	            privacy.TenantFilterRule("tenantId"),
//	        },
//	    }},
//	}
//
// # Rule Evaluation
//
// Rules are evaluated in order until one returns a final decision:
//
//   - Allow: grants access and stops evaluation
//   - Deny: denies access and stops evaluation
//   - Skip: continues to the next rule
//
// An operation whose rules all skip is allowed. End a policy with
// AlwaysDenyRule to deny by default.
//
// # Filtering
//
// Rules built with FilterFunc narrow the where argument of filterable
// actions (findFirst, findMany, aggregate, updateMany, deleteMany). Other
// actions are denied by them. The argument map of the operation is replaced,
// never mutated.
//
// # Context Integration
//
//	ctx = privacy.WithViewer(ctx, &privacy.SimpleViewer{
//	    UserID: "user-123",
//	    Roles:  []string{"user"},
//	})
//
// A decision attached with DecisionContext bypasses evaluation, e.g. for
// internal jobs:
//
//	ctx = privacy.DecisionContext(ctx, privacy.Allow)
package privacy
